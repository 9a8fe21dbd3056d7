package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/projectkeeper/internal/accesscode"
	"github.com/wolfeidau/projectkeeper/internal/capability"
	"github.com/wolfeidau/projectkeeper/internal/lifecycle"
	"github.com/wolfeidau/projectkeeper/internal/notify"
	"github.com/wolfeidau/projectkeeper/internal/revision"
	"github.com/wolfeidau/projectkeeper/internal/storage"
	"github.com/wolfeidau/projectkeeper/internal/store"
	memorystore "github.com/wolfeidau/projectkeeper/internal/store/memory"
	postgresstore "github.com/wolfeidau/projectkeeper/internal/store/postgres"
	redisstore "github.com/wolfeidau/projectkeeper/internal/store/redis"
	"github.com/wolfeidau/projectkeeper/internal/telemetry"
)

// backend holds the opened stores and the functions that release them, run in reverse.
type backend struct {
	stores *store.Stores
	jobs   store.JobStore
	claims store.ClaimStore
	pool   *pgxpool.Pool

	closers []func()
}

func (b *backend) onClose(fn func()) {
	b.closers = append(b.closers, fn)
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend opens the relational stores. The job store is only created when withQueue is set.
func openBackend(ctx context.Context, flags StoreFlags, withQueue bool) (*backend, error) {
	b := &backend{}

	switch flags.StoreType {
	case "postgres":
		validate := flags.Postgres.Validate
		if withQueue {
			validate = flags.Postgres.validateQueue
		}
		if err := validate(); err != nil {
			return nil, err
		}

		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      flags.Postgres.ConnString,
			MaxConns:        flags.Postgres.MaxConns,
			MinConns:        flags.Postgres.MinConns,
			MaxConnLifetime: flags.Postgres.MaxConnLifetime,
			MaxConnIdleTime: flags.Postgres.MaxConnIdleTime,
			AutoMigrate:     flags.Postgres.AutoMigrate,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		b.pool = pool
		b.onClose(pool.Close)

		b.stores = postgresstore.NewStores(pool)
		b.claims = postgresstore.NewClaimStore(pool)

		if withQueue {
			jobs, err := postgresstore.NewJobStore(pool, &postgresstore.JobStoreConfig{
				TokenSigningSecret:      []byte(flags.Postgres.TokenSigningSecret),
				CompletedRetentionHours: flags.Postgres.JobRetentionHours,
			})
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("failed to create job store: %w", err)
			}
			b.jobs = jobs
		}

		log.Info().Msg("Using PostgreSQL stores with shared connection pool")

	default:
		b.stores = memorystore.NewStores()
		b.claims = memorystore.NewClaimStore()
		if withQueue {
			b.jobs = memorystore.NewJobStore()
		}
		log.Warn().Msg("Using in-memory stores, data is lost on exit")
	}

	if b.jobs != nil {
		if err := b.jobs.Start(); err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to start job store: %w", err)
		}
		b.onClose(func() {
			if err := b.jobs.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop job store")
			}
		})
	}

	return b, nil
}

// useRedisClaims replaces the store backed claims with Redis.
func (b *backend) useRedisClaims(ctx context.Context, flags ClaimFlags) error {
	if flags.Backend != "redis" {
		return nil
	}

	rdb, err := redisstore.NewClient(ctx, redisstore.Config{
		Addr:     flags.Addr,
		Password: flags.Password,
		DB:       flags.DB,
		PoolSize: flags.PoolSize,
	})
	if err != nil {
		return err
	}
	b.onClose(func() { _ = rdb.Close() })

	b.claims = redisstore.NewClaimStore(rdb, flags.KeyPrefix)
	log.Info().Str("addr", flags.Addr).Msg("Using Redis teardown claims")

	return nil
}

// newLifecycle wires the lifecycle service with the plan oracle, code generator,
// revision recorder and media storage.
func newLifecycle(stores *store.Stores, flags LifecycleFlags, media *storage.FS) (*lifecycle.Service, func(), error) {
	plans := capability.AllTypes()
	if flags.PlanFile != "" {
		var err error
		if plans, err = capability.LoadPlans(flags.PlanFile); err != nil {
			return nil, nil, err
		}
	}

	recorder, err := revision.NewRecorder()
	if err != nil {
		return nil, nil, err
	}

	codes := accesscode.New(stores.AccessCodes, accesscode.Config{
		CodeLength:  flags.CodeLength,
		MaxAttempts: flags.CodeMaxAttempts,
	})

	svc, err := lifecycle.NewService(
		stores,
		capability.NewPlanOracle(stores.Tenants, stores.Resources, plans),
		codes,
		recorder,
		lifecycle.Config{RevisionRetention: lifecycle.RetentionPolicy(flags.RevisionRetention)},
		lifecycle.WithArtifactStore(media),
		lifecycle.WithAuditSink(lifecycle.LogAuditSink{}),
	)
	if err != nil {
		recorder.Close()
		return nil, nil, err
	}

	return svc, recorder.Close, nil
}

// newNotifier always logs summaries and additionally publishes them on NATS when servers are set.
func newNotifier(flags NotifyFlags, version string) (notify.Notifier, func(), error) {
	if len(flags.Servers) == 0 {
		return notify.LogNotifier{}, func() {}, nil
	}

	nc, err := notify.Connect(notify.NATSConfig{
		Servers: flags.Servers,
		Name:    "projectkeeper-" + version,
		Subject: flags.Subject,
	})
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() {
		if err := nc.Drain(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}

	return notify.Multi{notify.LogNotifier{}, notify.NewNATSNotifier(nc, flags.Subject)}, closeFn, nil
}

// startTelemetry returns a shutdown function that is safe to call when telemetry is disabled.
func startTelemetry(ctx context.Context, flags TelemetryFlags, version string) func() {
	if !flags.Enabled {
		return func() {}
	}

	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
		ServiceName: "projectkeeper",
		Version:     version,
		SampleRatio: flags.SampleRatio,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}
}
