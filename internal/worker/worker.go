// Package worker polls a job queue and dispatches jobs to handlers by kind.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/telemetry"
)

// Handler runs one job. Returning an error wrapped with backoff.Permanent fails the
// job without further attempts.
type Handler interface {
	Handle(ctx context.Context, job *models.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *models.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *models.Job) error {
	return f(ctx, job)
}

// Config controls polling and retries.
type Config struct {
	Queue             string
	BatchSize         int
	PollInterval      time.Duration
	ErrorBackoff      time.Duration
	VisibilityTimeout time.Duration
	MaxAttempts       int
	RetryInitial      time.Duration
	RetryMax          time.Duration
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 30 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Minute
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Queue == "" {
		return errors.New("queue is required")
	}
	if c.VisibilityTimeout < time.Second {
		return fmt.Errorf("visibility timeout must be at least 1s, got %s", c.VisibilityTimeout)
	}
	return nil
}

// Worker dequeues jobs and runs the handler registered for their kind.
type Worker struct {
	jobs     store.JobStore
	cfg      Config
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates a worker for cfg.Queue.
func New(jobs store.JobStore, cfg Config) (*Worker, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Worker{
		jobs:     jobs,
		cfg:      cfg,
		handlers: make(map[string]Handler),
	}, nil
}

// Register sets the handler for a job kind.
func (w *Worker) Register(kind string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[kind] = h
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Str("queue", w.cfg.Queue).Msg("Worker starting")

	for {
		n, err := w.ProcessOnce(ctx)

		wait := w.cfg.PollInterval
		switch {
		case err != nil:
			log.Error().Err(err).Str("queue", w.cfg.Queue).Msg("Error processing jobs")
			wait = w.cfg.ErrorBackoff
		case n > 0:
			wait = 0
		}

		select {
		case <-ctx.Done():
			log.Info().Str("queue", w.cfg.Queue).Msg("Worker stopping")
			return nil
		case <-time.After(wait):
		}
	}
}

// ProcessOnce dequeues one batch and runs it, returning the number of jobs handled.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	metrics := telemetry.GetMetrics()

	claimed, err := w.jobs.Dequeue(ctx, w.cfg.Queue, w.cfg.BatchSize, int(w.cfg.VisibilityTimeout/time.Second))
	if err != nil {
		return 0, fmt.Errorf("failed to dequeue jobs: %w", err)
	}

	metrics.JobsDequeuedTotal.Add(ctx, int64(len(claimed)), metric.WithAttributes(attribute.String("queue", w.cfg.Queue)))

	for _, jt := range claimed {
		if err := w.process(ctx, jt); err != nil {
			return len(claimed), err
		}
	}

	return len(claimed), nil
}

func (w *Worker) process(ctx context.Context, jt *store.JobWithToken) error {
	metrics := telemetry.GetMetrics()
	job := jt.Job

	logger := log.With().
		Str("job_id", job.JobID.String()).
		Str("kind", job.Kind).
		Int("attempt", job.Attempts).
		Logger()
	ctx = logger.WithContext(ctx)

	w.mu.RLock()
	h, ok := w.handlers[job.Kind]
	w.mu.RUnlock()

	if !ok {
		logger.Error().Msg("No handler registered for job kind")
		return w.jobs.Complete(ctx, jt.TaskToken, false, "no handler for kind "+job.Kind)
	}

	stop := w.keepVisible(ctx, jt)
	herr := h.Handle(ctx, job)
	stop()

	if herr == nil {
		if err := w.jobs.Complete(ctx, jt.TaskToken, true, ""); err != nil {
			return fmt.Errorf("failed to complete job %s: %w", job.JobID, err)
		}
		metrics.JobsCompletedTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", true)))
		logger.Info().Msg("Job completed")
		return nil
	}

	var permanent *backoff.PermanentError
	if errors.As(herr, &permanent) || job.Attempts >= w.cfg.MaxAttempts {
		logger.Error().Err(herr).Msg("Job failed")
		if err := w.jobs.Complete(ctx, jt.TaskToken, false, herr.Error()); err != nil {
			return fmt.Errorf("failed to fail job %s: %w", job.JobID, err)
		}
		metrics.JobsCompletedTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", false)))
		return nil
	}

	delay := w.retryDelay(job.Attempts)
	logger.Warn().Err(herr).Dur("delay", delay).Msg("Job attempt failed, releasing")

	if err := w.jobs.Release(ctx, jt.TaskToken, delay, herr.Error()); err != nil {
		return fmt.Errorf("failed to release job %s: %w", job.JobID, err)
	}
	metrics.JobsReleasedTotal.Add(ctx, 1)

	return nil
}

// keepVisible extends the visibility timeout while the handler runs.
func (w *Worker) keepVisible(ctx context.Context, jt *store.JobWithToken) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(w.cfg.VisibilityTimeout / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := w.jobs.UpdateVisibility(ctx, jt.Job.Queue, jt.TaskToken, int(w.cfg.VisibilityTimeout/time.Second))
				if err != nil {
					log.Ctx(ctx).Warn().Err(err).Msg("Failed to extend job visibility")
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// retryDelay returns the exponential delay before attempt+1.
func (w *Worker) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryInitial
	b.MaxInterval = w.cfg.RetryMax

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}

	return delay
}
