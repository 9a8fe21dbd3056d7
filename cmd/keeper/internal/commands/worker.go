package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/projectkeeper/internal/storage"
	postgresstore "github.com/wolfeidau/projectkeeper/internal/store/postgres"
	"github.com/wolfeidau/projectkeeper/internal/teardown"
	"github.com/wolfeidau/projectkeeper/internal/worker"
	"golang.org/x/sync/errgroup"
)

type WorkerCmd struct {
	Store     StoreFlags     `embed:""`
	Lifecycle LifecycleFlags `embed:"" prefix:"lifecycle-"`
	Claims    ClaimFlags     `embed:"" prefix:"claim-"`
	Notify    NotifyFlags    `embed:"" prefix:"notify-"`
	Telemetry TelemetryFlags `embed:"" prefix:"otel-"`
	Teardown  TeardownFlags  `embed:"" prefix:"teardown-"`

	BatchSize         int           `help:"jobs dequeued per poll" default:"1"`
	PollInterval      time.Duration `help:"delay between empty polls" default:"1s"`
	VisibilityTimeout time.Duration `help:"how long a dequeued job stays hidden" default:"5m"`
	MaxAttempts       int           `help:"attempts before a job is marked failed" default:"5"`
	SweepInterval     time.Duration `help:"interval between orphan sweeps, 0 disables" default:"10m"`
	SweepLimit        int           `help:"resources destroyed per orphan sweep" default:"100"`
	PoolStatsInterval time.Duration `help:"interval between connection pool stats logs, 0 disables" default:"1m"`
}

func (w *WorkerCmd) Run(ctx context.Context, globals *Globals) error {
	shutdownTelemetry := startTelemetry(ctx, w.Telemetry, globals.Version)
	defer shutdownTelemetry()

	b, err := openBackend(ctx, w.Store, true)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.useRedisClaims(ctx, w.Claims); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	media := storage.NewOsFS(w.Lifecycle.MediaRoot)

	svc, closeLifecycle, err := newLifecycle(b.stores, w.Lifecycle, media)
	if err != nil {
		return fmt.Errorf("failed to create lifecycle service: %w", err)
	}
	defer closeLifecycle()

	notifier, closeNotifier, err := newNotifier(w.Notify, globals.Version)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	defer closeNotifier()

	orchestrator := teardown.NewOrchestrator(b.stores, svc, b.claims, media, notifier, teardown.Config{
		BatchSize:    w.Teardown.BatchSize,
		ClaimTTL:     w.Teardown.ClaimTTL,
		StepMaxTries: w.Teardown.StepMaxTries,
	})

	wrk, err := worker.New(b.jobs, worker.Config{
		Queue:             teardown.Queue,
		BatchSize:         w.BatchSize,
		PollInterval:      w.PollInterval,
		VisibilityTimeout: w.VisibilityTimeout,
		MaxAttempts:       w.MaxAttempts,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	wrk.Register(teardown.JobKind, orchestrator)

	log.Info().
		Str("version", globals.Version).
		Str("store", w.Store.StoreType).
		Str("claims", w.Claims.Backend).
		Str("media_root", w.Lifecycle.MediaRoot).
		Msg("Starting worker")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return wrk.Run(ctx)
	})

	if w.SweepInterval > 0 {
		g.Go(func() error {
			runSweepLoop(ctx, w.SweepInterval, w.SweepLimit, svc.SweepOrphans)
			return nil
		})
	}

	if b.pool != nil && w.PoolStatsInterval > 0 {
		g.Go(func() error {
			postgresstore.MonitorPool(ctx, b.pool, w.PoolStatsInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info().Msg("Worker stopped")

	return nil
}

// runSweepLoop calls sweep every interval until ctx is done. Failures are logged and retried on the next tick.
func runSweepLoop(ctx context.Context, interval time.Duration, limit int, sweep func(context.Context, int) (int, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweep(ctx, limit)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).Int("destroyed", n).Msg("Orphan sweep failed")
				continue
			}
			if n > 0 {
				log.Ctx(ctx).Info().Int("destroyed", n).Msg("Orphan sweep finished")
			}
		}
	}
}
