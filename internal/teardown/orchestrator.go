package teardown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/projectkeeper/internal/lifecycle"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/telemetry"
)

// Notifier receives the summary once the tenant row is gone.
type Notifier interface {
	Notify(ctx context.Context, summary *models.DeletionSummary) error
}

// StoragePurger removes tenant files outside the relational store.
type StoragePurger interface {
	PurgeTenantStorage(ctx context.Context, tenantID uuid.UUID) error
	RemoveTenantRoot(ctx context.Context, tenant *models.Tenant) error
}

// ResourceDestroyer hard deletes a single resource.
type ResourceDestroyer interface {
	DestroyFully(ctx context.Context, resourceID uuid.UUID, opts ...lifecycle.DestroyOption) error
}

// Config controls paging, the tenant claim and step retries.
type Config struct {
	BatchSize           int
	ClaimTTL            time.Duration
	StepMaxTries        uint
	StepInitialInterval time.Duration
	StepMaxInterval     time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = 30 * time.Minute
	}
	if c.StepMaxTries == 0 {
		c.StepMaxTries = 5
	}
	if c.StepInitialInterval <= 0 {
		c.StepInitialInterval = 200 * time.Millisecond
	}
	if c.StepMaxInterval <= 0 {
		c.StepMaxInterval = 10 * time.Second
	}
}

// Orchestrator runs tenant teardowns.
type Orchestrator struct {
	stores    *store.Stores
	destroyer ResourceDestroyer
	claims    store.ClaimStore
	storage   StoragePurger
	notifier  Notifier
	cfg       Config
	owner     string
}

// NewOrchestrator creates an orchestrator. The claim owner is derived from the host
// name and process id.
func NewOrchestrator(stores *store.Stores, destroyer ResourceDestroyer, claims store.ClaimStore, storage StoragePurger, notifier Notifier, cfg Config) *Orchestrator {
	cfg.ApplyDefaults()

	host, _ := os.Hostname()

	return &Orchestrator{
		stores:    stores,
		destroyer: destroyer,
		claims:    claims,
		storage:   storage,
		notifier:  notifier,
		cfg:       cfg,
		owner:     fmt.Sprintf("%s/%d/%s", host, os.Getpid(), uuid.NewString()),
	}
}

// Teardown destroys the tenant and everything it owns, returning the resources whose
// user-submitted data was destroyed. Steps run in order and each is retried; a step
// that keeps failing aborts the run with the tenant row still present so the run can
// be repeated. Destroyed submissions are written to the deletion ledger before each
// destroy, so a repeated run still reports resources destroyed by earlier attempts.
// A missing tenant yields the summary left in the ledger by an interrupted run, which
// is empty once the summary has been sent.
func (o *Orchestrator) Teardown(ctx context.Context, tenantID uuid.UUID) (*models.DeletionSummary, error) {
	metrics := telemetry.GetMetrics()
	start := time.Now()

	logger := log.Ctx(ctx).With().Str("tenant_id", tenantID.String()).Logger()
	ctx = logger.WithContext(ctx)

	claimed, err := o.claims.Claim(ctx, tenantID, o.owner, o.cfg.ClaimTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tenant: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %s", ErrTeardownInProgress, tenantID)
	}
	defer func() {
		if err := o.claims.Release(context.WithoutCancel(ctx), tenantID, o.owner); err != nil {
			logger.Warn().Err(err).Msg("Failed to release teardown claim")
		}
	}()

	tenant, err := o.stores.Tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			return o.finishInterrupted(ctx, tenantID)
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"destroy_resources", func(ctx context.Context) error { return o.destroyResources(ctx, tenant) }},
		{"delete_users", func(ctx context.Context) error { return o.deleteUsers(ctx, tenantID) }},
		{"delete_tenant_rows", func(ctx context.Context) error { return o.deleteTenantRows(ctx, tenantID) }},
		{"purge_storage", func(ctx context.Context) error { return o.storage.PurgeTenantStorage(ctx, tenantID) }},
		{"delete_tenant", func(ctx context.Context) error { return o.deleteTenant(ctx, tenantID) }},
	}

	for _, step := range steps {
		err := o.renewClaim(ctx, tenantID)
		if err == nil {
			err = o.retry(ctx, step.name, step.run)
		}
		if err != nil {
			metrics.TeardownsFailedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step.name)))
			logger.Error().Err(err).Str("step", step.name).Msg("Tenant teardown aborted")
			return nil, err
		}
	}

	var summary *models.DeletionSummary
	err = o.retry(ctx, "collect_summary", func(ctx context.Context) error {
		entries, err := o.stores.DeletionLedger.List(ctx, tenantID)
		if err != nil {
			return err
		}
		summary = models.SummaryFromLedger(tenantID, tenant.Name, entries)
		return nil
	})
	if err != nil {
		// The tenant row is gone; a repeated run sends the summary from the ledger.
		metrics.TeardownsFailedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("step", "collect_summary")))
		logger.Error().Err(err).Msg("Failed to collect teardown summary")
		return nil, err
	}

	// The tenant is gone; what follows is best effort.
	o.sendSummary(ctx, summary)
	if err := o.storage.RemoveTenantRoot(ctx, tenant); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove tenant storage root")
	}

	metrics.TeardownsCompletedTotal.Add(ctx, 1)
	metrics.TeardownDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

	logger.Info().
		Int("resources_with_submissions", len(summary.Entries)).
		Dur("duration", time.Since(start)).
		Msg("Tenant teardown completed")

	return summary, nil
}

// finishInterrupted sends the summary of a run that deleted the tenant row but stopped
// before the summary went out.
func (o *Orchestrator) finishInterrupted(ctx context.Context, tenantID uuid.UUID) (*models.DeletionSummary, error) {
	logger := zerolog.Ctx(ctx)

	entries, err := o.stores.DeletionLedger.List(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deletion ledger: %w", err)
	}
	if len(entries) == 0 {
		logger.Info().Msg("Tenant already gone, nothing to tear down")
		return &models.DeletionSummary{TenantID: tenantID}, nil
	}

	summary := models.SummaryFromLedger(tenantID, "", entries)
	logger.Info().Int("resources_with_submissions", len(summary.Entries)).Msg("Sending summary of interrupted teardown")
	o.sendSummary(ctx, summary)

	return summary, nil
}

// sendSummary notifies and then clears the tenant's ledger entries.
func (o *Orchestrator) sendSummary(ctx context.Context, summary *models.DeletionSummary) {
	logger := zerolog.Ctx(ctx)

	if err := o.notifier.Notify(ctx, summary); err != nil {
		logger.Warn().Err(err).Msg("Failed to send teardown notification")
	}
	if _, err := o.stores.DeletionLedger.DeleteByTenant(ctx, summary.TenantID); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear deletion ledger")
	}
}

// renewClaim extends the claim held by this orchestrator. ErrTeardownInProgress means
// another owner took the claim after it expired.
func (o *Orchestrator) renewClaim(ctx context.Context, tenantID uuid.UUID) error {
	ok, err := o.claims.Claim(ctx, tenantID, o.owner, o.cfg.ClaimTTL)
	if err != nil {
		return fmt.Errorf("failed to renew claim: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: claim on %s lost", ErrTeardownInProgress, tenantID)
	}
	return nil
}

// retry runs op with exponential backoff up to StepMaxTries times.
func (o *Orchestrator) retry(ctx context.Context, name string, op func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.StepInitialInterval
	b.MaxInterval = o.cfg.StepMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(o.cfg.StepMaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			telemetry.GetMetrics().TeardownStepRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("step", name)))
			zerolog.Ctx(ctx).Warn().Err(err).Str("step", name).Dur("next", next).Msg("Teardown step failed, retrying")
		}),
	)
	if err != nil {
		return fmt.Errorf("teardown step %s: %w", name, err)
	}

	return nil
}

// destroyResources hard deletes every resource of the tenant, soft deleted or not.
// Submission counts are recorded in the ledger before the destroy; the upsert keeps a
// retried step from counting a resource twice. The claim is renewed after every page.
func (o *Orchestrator) destroyResources(ctx context.Context, tenant *models.Tenant) error {
	cursor := uuid.Nil

	for {
		page, err := o.stores.Resources.ListByTenant(ctx, tenant.TenantID, store.ListResourcesOptions{
			IncludeDeleted: true,
			After:          cursor,
			Limit:          o.cfg.BatchSize,
		})
		if err != nil {
			return fmt.Errorf("failed to list resources: %w", err)
		}
		if len(page) == 0 {
			return nil
		}

		for _, res := range page {
			if submissions, ok := res.Submissions(); ok && submissions > 0 {
				err := o.stores.DeletionLedger.Record(ctx, &models.DeletionLedgerEntry{
					TenantID:        tenant.TenantID,
					TenantName:      tenant.Name,
					ResourceID:      res.ResourceID,
					ResourceName:    res.Name,
					SubmissionCount: submissions,
					RecordedAt:      time.Now(),
				})
				if err != nil {
					return fmt.Errorf("failed to record submissions of resource %s: %w", res.ResourceID, err)
				}
			}

			err := o.destroyer.DestroyFully(ctx, res.ResourceID, lifecycle.WithRevisionRetention(lifecycle.RetentionPurge))
			switch {
			case err == nil, errors.Is(err, lifecycle.ErrInconsistentState), errors.Is(err, lifecycle.ErrResourceNotFound):
			default:
				return fmt.Errorf("failed to destroy resource %s: %w", res.ResourceID, err)
			}
		}

		cursor = page[len(page)-1].ResourceID

		if err := o.renewClaim(ctx, tenant.TenantID); err != nil {
			if errors.Is(err, ErrTeardownInProgress) {
				return backoff.Permanent(err)
			}
			return err
		}
	}
}

// deleteUsers removes every user of the tenant, protected ones included.
func (o *Orchestrator) deleteUsers(ctx context.Context, tenantID uuid.UUID) error {
	users, err := o.stores.Users.ListByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	for _, u := range users {
		if err := o.stores.Users.Delete(ctx, u.UserID, true); err != nil && !errors.Is(err, store.ErrUserNotFound) {
			return fmt.Errorf("failed to delete user %s: %w", u.UserID, err)
		}
	}

	return nil
}

// deleteTenantRows bulk deletes usage logs and any revisions left behind by retained destroys.
func (o *Orchestrator) deleteTenantRows(ctx context.Context, tenantID uuid.UUID) error {
	usage, err := o.stores.UsageLogs.DeleteByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete usage logs: %w", err)
	}

	revisions, err := o.stores.Revisions.DeleteByTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete revisions: %w", err)
	}

	zerolog.Ctx(ctx).Debug().
		Int64("usage_logs", usage).
		Int64("revisions", revisions).
		Msg("Tenant rows deleted")

	return nil
}

func (o *Orchestrator) deleteTenant(ctx context.Context, tenantID uuid.UUID) error {
	if err := o.stores.Tenants.Delete(ctx, tenantID); err != nil && !errors.Is(err, store.ErrTenantNotFound) {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return nil
}
