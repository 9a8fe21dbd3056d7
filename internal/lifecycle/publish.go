package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfeidau/projectkeeper/internal/accesscode"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

// PublishRequest names a new access code for a resource.
type PublishRequest struct {
	ResourceID uuid.UUID
	Name       string
	IsPublic   bool
	Online     bool
}

// Publish generates a named access code for an active, publishable resource.
func (s *Service) Publish(ctx context.Context, req PublishRequest) (*models.AccessCode, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &ValidationError{Violations: []models.FieldError{{Field: "name", Reason: "is required"}}}
	}

	res, err := s.publishable(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	return s.codes.Generate(ctx, res, accesscode.Options{Name: req.Name, IsPublic: req.IsPublic, Online: req.Online})
}

// CreateOrGetPreviewCode returns the live preview code of a resource, creating one
// when none exists. Concurrent callers converge on the stored code.
func (s *Service) CreateOrGetPreviewCode(ctx context.Context, resourceID uuid.UUID) (*models.AccessCode, error) {
	existing, err := s.stores.AccessCodes.GetPreview(ctx, resourceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrAccessCodeNotFound) {
		return nil, fmt.Errorf("failed to get preview code: %w", err)
	}

	res, err := s.publishable(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	name, err := s.previewName(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.Generate(ctx, res, accesscode.Options{
		Name:      name,
		IsPreview: true,
		IsPublic:  true,
		Online:    true,
	})
	if errors.Is(err, store.ErrPreviewCodeExists) {
		existing, err := s.stores.AccessCodes.GetPreview(ctx, resourceID)
		if err != nil {
			return nil, fmt.Errorf("failed to get preview code: %w", err)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	return code, nil
}

// IsPublished reports whether the resource owns at least one live access code.
func (s *Service) IsPublished(ctx context.Context, resourceID uuid.UUID) (bool, error) {
	n, err := s.stores.AccessCodes.CountLive(ctx, resourceID)
	if err != nil {
		return false, fmt.Errorf("failed to count access codes: %w", err)
	}
	return n > 0, nil
}

func (s *Service) publishable(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error) {
	res, err := s.Get(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res.IsDeleted() {
		return nil, fmt.Errorf("%w: %s", ErrResourceDeleted, resourceID)
	}
	if !res.Type.Publishable() {
		return nil, fmt.Errorf("%w: %s", ErrNotPublishable, res.Type)
	}
	return res, nil
}

// previewName returns the preview code name, suffixed until it differs from the
// names of the resource's other live codes.
func (s *Service) previewName(ctx context.Context, resourceID uuid.UUID) (string, error) {
	codes, err := s.stores.AccessCodes.ListByResource(ctx, resourceID, false)
	if err != nil {
		return "", fmt.Errorf("failed to list access codes: %w", err)
	}

	taken := make(map[string]bool, len(codes))
	for _, c := range codes {
		taken[c.Name] = true
	}

	name := models.PreviewCodeName
	for taken[name] {
		name += "1"
	}

	return name, nil
}
