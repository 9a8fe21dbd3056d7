package lifecycle

import (
	"errors"
	"strings"

	"github.com/wolfeidau/projectkeeper/internal/accesscode"
	"github.com/wolfeidau/projectkeeper/internal/models"
)

var (
	ErrValidationFailed      = errors.New("validation failed")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrQuotaExceeded         = errors.New("resource quota exceeded")
	ErrCodeSpaceExhausted    = accesscode.ErrCodeSpaceExhausted
	ErrInconsistentState     = errors.New("inconsistent resource state")
	ErrResourceNotFound      = errors.New("resource not found")
	ErrResourceDeleted       = errors.New("resource is soft deleted")
	ErrNotPublishable        = errors.New("resource type is not publishable")
)

// Fields used for policy violations. errors.Is on a ValidationError carrying them
// also matches the matching policy sentinel.
const (
	FieldCapability   = "capability"
	FieldSubscription = "subscription"
	FieldQuota        = "quota"
)

// ValidationError lists every violated constraint of a request.
type ValidationError struct {
	Violations []models.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidationFailed:
		return true
	case ErrQuotaExceeded:
		return e.has(FieldQuota)
	case ErrCapabilityUnavailable:
		return e.has(FieldCapability) || e.has(FieldSubscription)
	}
	return false
}

func (e *ValidationError) has(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

type violations []models.FieldError

func (v *violations) add(field, reason string) {
	*v = append(*v, models.FieldError{Field: field, Reason: reason})
}

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Violations: v}
}
