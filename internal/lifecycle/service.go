// Package lifecycle implements the resource state machine: creation, updates with
// revision capture, soft delete, restore, full destruction and publishing.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/projectkeeper/internal/accesscode"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/revision"
	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/telemetry"
)

// CreateRequest describes a new resource.
type CreateRequest struct {
	TenantID   uuid.UUID
	Type       models.ResourceType
	Name       string
	CreatorRef string
	Payload    models.Payload

	// PublishAs, when set for a publishable type, generates an access code with this name.
	PublishAs string
}

// UpdateRequest changes the mutable fields of a resource. Nil fields are left as is.
type UpdateRequest struct {
	ResourceID uuid.UUID
	EditorRef  string
	Name       *string
	Payload    models.Payload
	FontID     *string
	NoDataSync *bool
}

// Service drives resource state transitions against the stores.
type Service struct {
	stores    *store.Stores
	oracle    Oracle
	codes     *accesscode.Generator
	recorder  *revision.Recorder
	artifacts ArtifactStore
	audit     AuditSink
	cfg       Config
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithArtifactStore sets where payload artifacts are deleted from.
func WithArtifactStore(artifacts ArtifactStore) Option {
	return func(s *Service) {
		s.artifacts = artifacts
	}
}

// WithAuditSink sets the receiver of audit events, LogAuditSink by default.
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) {
		s.audit = sink
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a lifecycle service.
func NewService(stores *store.Stores, oracle Oracle, codes *accesscode.Generator, recorder *revision.Recorder, cfg Config, opts ...Option) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		stores:    stores,
		oracle:    oracle,
		codes:     codes,
		recorder:  recorder,
		artifacts: noopArtifacts{},
		audit:     LogAuditSink{},
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Get returns a resource including soft-deleted ones.
func (s *Service) Get(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error) {
	res, err := s.stores.Resources.Get(ctx, resourceID)
	if err != nil {
		if errors.Is(err, store.ErrResourceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
		}
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	return res, nil
}

// Create validates the request, persists the resource with its payload and, when
// requested for a publishable type, publishes it. Every violated constraint is
// reported at once in a *ValidationError and nothing is written.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Resource, error) {
	metrics := telemetry.GetMetrics()

	var v violations

	if strings.TrimSpace(req.Name) == "" {
		v.add("name", "is required")
	}
	if strings.TrimSpace(req.CreatorRef) == "" {
		v.add("creator", "is required")
	}

	typeValid := req.Type.Valid()
	if !typeValid {
		v.add("resource_type", fmt.Sprintf("%q is not a known resource type", req.Type))
	}

	switch {
	case req.Payload == nil:
		v.add("payload", "is required")
	case typeValid && req.Payload.Type() != req.Type:
		v.add("payload", fmt.Sprintf("is a %s payload, expected %s", req.Payload.Type(), req.Type))
	default:
		v = append(v, req.Payload.Validate()...)
	}

	tenant, err := s.stores.Tenants.Get(ctx, req.TenantID)
	switch {
	case errors.Is(err, store.ErrTenantNotFound):
		v.add("tenant_id", "does not exist")
	case err != nil:
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	case tenant.Deleted:
		v.add("tenant_id", "is scheduled for deletion")
	case !tenant.Activated:
		v.add("tenant_id", "is not activated")
	}

	if tenant != nil {
		if err := s.checkPolicy(ctx, tenant.TenantID, req.Type, typeValid, &v); err != nil {
			return nil, err
		}
	}

	if err := v.err(); err != nil {
		metrics.PolicyRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "create")))
		return nil, err
	}

	now := s.now().UTC()
	res := &models.Resource{
		ResourceID:    uuid.Must(uuid.NewV7()),
		TenantID:      tenant.TenantID,
		Name:          req.Name,
		Type:          req.Type,
		CreatorRef:    req.CreatorRef,
		LastEditorRef: req.CreatorRef,
		FontID:        tenant.FontID,
		NoDataSync:    tenant.NoDataSync,
		CreatedAt:     now,
		UpdatedAt:     now,
		Payload:       req.Payload,
	}

	if err := s.stores.Resources.Create(ctx, res, tenant.ResourceQuota); err != nil {
		if errors.Is(err, store.ErrQuotaExceeded) {
			metrics.PolicyRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "create")))
			return nil, fmt.Errorf("%w: tenant %s", ErrQuotaExceeded, tenant.TenantID)
		}
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if req.PublishAs != "" && res.Type.Publishable() {
		if _, err := s.codes.Generate(ctx, res, accesscode.Options{Name: req.PublishAs, IsPublic: true, Online: true}); err != nil {
			// leave no half created resource behind
			if derr := s.DestroyFully(ctx, res.ResourceID); derr != nil {
				log.Ctx(ctx).Error().Err(derr).Str("resource_id", res.ResourceID.String()).Msg("Failed to roll back resource after publish failure")
			}
			return nil, fmt.Errorf("failed to publish resource: %w", err)
		}
	}

	metrics.ResourcesCreatedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("resource_type", string(res.Type))))

	log.Ctx(ctx).Info().
		Str("tenant_id", res.TenantID.String()).
		Str("resource_id", res.ResourceID.String()).
		Str("resource_type", string(res.Type)).
		Msg("Resource created")

	return res, nil
}

// checkPolicy adds subscription, capability and quota violations.
func (s *Service) checkPolicy(ctx context.Context, tenantID uuid.UUID, resourceType models.ResourceType, typeValid bool, v *violations) error {
	active, err := s.oracle.SubscriptionActive(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if !active {
		v.add(FieldSubscription, "has expired")
	}

	if typeValid {
		enabled, err := s.oracle.IsTypeEnabled(ctx, tenantID, resourceType)
		if err != nil {
			return fmt.Errorf("failed to check capability: %w", err)
		}
		if !enabled {
			v.add(FieldCapability, fmt.Sprintf("%s resources are not enabled for this tenant", resourceType))
		}
	}

	remaining, err := s.oracle.QuotaRemaining(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to check quota: %w", err)
	}
	if remaining <= 0 {
		v.add(FieldQuota, "resource limit reached")
	}

	return nil
}

// Update applies req to an active resource. A revision is captured in the same
// write when the type is history tracked and a tracked field changed.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*models.Resource, error) {
	metrics := telemetry.GetMetrics()

	before, err := s.Get(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if before.IsDeleted() {
		return nil, fmt.Errorf("%w: %s", ErrResourceDeleted, before.ResourceID)
	}
	if before.Payload == nil {
		return nil, fmt.Errorf("%w: resource %s has no payload", ErrInconsistentState, before.ResourceID)
	}

	if err := s.requireCapability(ctx, before.TenantID, before.Type); err != nil {
		metrics.PolicyRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "update")))
		return nil, err
	}

	after := before.Clone()
	after.LastEditorRef = req.EditorRef
	after.UpdatedAt = s.now().UTC()

	var v violations
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			v.add("name", "is required")
		}
		after.Name = *req.Name
	}
	if req.Payload != nil {
		if req.Payload.Type() != before.Type {
			v.add("payload", fmt.Sprintf("is a %s payload, expected %s", req.Payload.Type(), before.Type))
		} else {
			v = append(v, req.Payload.Validate()...)
			after.Payload = req.Payload
		}
	}
	if req.FontID != nil {
		after.FontID = req.FontID
	}
	if req.NoDataSync != nil {
		after.NoDataSync = *req.NoDataSync
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var snapshot *models.RevisionSnapshot
	if revision.IsTracked(after.Type) {
		changed, err := revision.Changed(before, after)
		if err != nil {
			return nil, err
		}
		if changed {
			snapshot, err = s.recorder.Capture(ctx, after, req.EditorRef)
			if err != nil {
				return nil, fmt.Errorf("failed to capture revision: %w", err)
			}
		}
	}

	if err := s.stores.Resources.Update(ctx, after, snapshot); err != nil {
		switch {
		case errors.Is(err, store.ErrResourceNotFound):
			return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, after.ResourceID)
		case errors.Is(err, store.ErrPayloadNotFound):
			return nil, fmt.Errorf("%w: resource %s has no payload", ErrInconsistentState, after.ResourceID)
		}
		return nil, fmt.Errorf("failed to update resource: %w", err)
	}

	metrics.ResourcesUpdatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource_type", string(after.Type)),
		attribute.Bool("revision", snapshot != nil),
	))

	return after, nil
}

// RecordOpen stamps LastOpenedAt and appends a usage row. It never captures a revision.
func (s *Service) RecordOpen(ctx context.Context, resourceID uuid.UUID) error {
	res, err := s.Get(ctx, resourceID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	usage := &models.UsageLog{
		UsageLogID: uuid.Must(uuid.NewV7()),
		TenantID:   res.TenantID,
		ResourceID: res.ResourceID,
		Kind:       models.UsageKindOpen,
		OccurredAt: now,
	}

	if err := s.stores.Resources.Touch(ctx, resourceID, now, usage); err != nil {
		return fmt.Errorf("failed to record open: %w", err)
	}

	return nil
}

// Restore reactivates a soft-deleted resource after re-checking capability and quota.
// Access codes removed by the soft delete stay deleted.
func (s *Service) Restore(ctx context.Context, resourceID uuid.UUID) (*models.Resource, error) {
	metrics := telemetry.GetMetrics()

	res, err := s.Get(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if !res.IsDeleted() {
		return res, nil
	}

	tenant, err := s.stores.Tenants.Get(ctx, res.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	if err := s.requireCapability(ctx, res.TenantID, res.Type); err != nil {
		metrics.PolicyRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "restore")))
		return nil, err
	}

	remaining, err := s.oracle.QuotaRemaining(ctx, res.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to check quota: %w", err)
	}
	if remaining <= 0 {
		metrics.PolicyRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "restore")))
		return nil, fmt.Errorf("%w: tenant %s", ErrQuotaExceeded, res.TenantID)
	}

	if err := s.stores.Resources.Restore(ctx, resourceID, tenant.ResourceQuota, s.now().UTC()); err != nil {
		if errors.Is(err, store.ErrQuotaExceeded) {
			metrics.PolicyRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "restore")))
			return nil, fmt.Errorf("%w: tenant %s", ErrQuotaExceeded, res.TenantID)
		}
		return nil, fmt.Errorf("failed to restore resource: %w", err)
	}

	metrics.ResourcesRestoredTotal.Add(ctx, 1)

	log.Ctx(ctx).Info().
		Str("tenant_id", res.TenantID.String()).
		Str("resource_id", res.ResourceID.String()).
		Msg("Resource restored")

	return s.Get(ctx, resourceID)
}

func (s *Service) requireCapability(ctx context.Context, tenantID uuid.UUID, resourceType models.ResourceType) error {
	active, err := s.oracle.SubscriptionActive(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to check subscription: %w", err)
	}
	if !active {
		return fmt.Errorf("%w: subscription of tenant %s has expired", ErrCapabilityUnavailable, tenantID)
	}

	enabled, err := s.oracle.IsTypeEnabled(ctx, tenantID, resourceType)
	if err != nil {
		return fmt.Errorf("failed to check capability: %w", err)
	}
	if !enabled {
		return fmt.Errorf("%w: %s resources are not enabled for tenant %s", ErrCapabilityUnavailable, resourceType, tenantID)
	}

	return nil
}
