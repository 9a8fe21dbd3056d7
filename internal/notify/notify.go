// Package notify delivers tenant deletion summaries.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/projectkeeper/internal/models"
)

// TenantDeleted is the message published after a tenant teardown.
type TenantDeleted struct {
	Summary   *models.DeletionSummary `json:"summary"`
	DeletedAt time.Time               `json:"deleted_at"`
}

// LogNotifier writes deletion summaries to the context logger.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, summary *models.DeletionSummary) error {
	ev := log.Ctx(ctx).Info().
		Str("tenant_id", summary.TenantID.String()).
		Str("tenant_name", summary.TenantName).
		Int("resources_with_submissions", len(summary.Entries))

	var total int64
	for _, e := range summary.Entries {
		total += e.SubmissionCount
	}

	ev.Int64("submissions", total).Msg("Tenant deleted")

	return nil
}

// Notifier is implemented by every delivery channel in this package.
type Notifier interface {
	Notify(ctx context.Context, summary *models.DeletionSummary) error
}

// Multi fans a summary out to every notifier, joining their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, summary *models.DeletionSummary) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
