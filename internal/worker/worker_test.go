package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
	"github.com/wolfeidau/projectkeeper/internal/store/memory"
)

func newWorker(t *testing.T, jobs store.JobStore, cfg Config) *Worker {
	t.Helper()

	if cfg.Queue == "" {
		cfg.Queue = "test"
	}
	if cfg.RetryInitial == 0 {
		cfg.RetryInitial = time.Millisecond
		cfg.RetryMax = time.Millisecond
	}

	w, err := New(jobs, cfg)
	require.NoError(t, err)

	return w
}

func enqueue(t *testing.T, jobs store.JobStore, kind string) *models.Job {
	t.Helper()

	job, err := jobs.Enqueue(context.Background(), &store.EnqueueRequest{Queue: "test", Kind: kind, Payload: []byte(`{}`)})
	require.NoError(t, err)

	return job
}

func TestNew_Validate(t *testing.T) {
	_, err := New(memory.NewJobStore(), Config{})
	require.Error(t, err)
}

func TestWorker_ProcessOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("completes successful jobs", func(t *testing.T) {
		jobs := memory.NewJobStore()
		w := newWorker(t, jobs, Config{})

		var seen atomic.Int32
		w.Register("greet", HandlerFunc(func(ctx context.Context, job *models.Job) error {
			seen.Add(1)
			return nil
		}))

		job := enqueue(t, jobs, "greet")

		n, err := w.ProcessOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.Equal(t, int32(1), seen.Load())

		stored, err := jobs.Get(ctx, job.JobID)
		require.NoError(t, err)
		require.Equal(t, models.JobStateCompleted, stored.State)
	})

	t.Run("empty queue", func(t *testing.T) {
		w := newWorker(t, memory.NewJobStore(), Config{})

		n, err := w.ProcessOnce(ctx)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("releases failed jobs until max attempts", func(t *testing.T) {
		jobs := memory.NewJobStore()
		w := newWorker(t, jobs, Config{MaxAttempts: 3})
		w.Register("flaky", HandlerFunc(func(context.Context, *models.Job) error {
			return errors.New("boom")
		}))

		job := enqueue(t, jobs, "flaky")

		for i := 1; i <= 3; i++ {
			require.Eventually(t, func() bool {
				n, err := w.ProcessOnce(ctx)
				return err == nil && n == 1
			}, time.Second, 2*time.Millisecond)

			stored, err := jobs.Get(ctx, job.JobID)
			require.NoError(t, err)
			require.Equal(t, i, stored.Attempts)
			require.Equal(t, "boom", stored.LastError)

			if i < 3 {
				require.Equal(t, models.JobStateScheduled, stored.State)
			} else {
				require.Equal(t, models.JobStateFailed, stored.State)
			}
		}
	})

	t.Run("permanent errors fail immediately", func(t *testing.T) {
		jobs := memory.NewJobStore()
		w := newWorker(t, jobs, Config{MaxAttempts: 10})
		w.Register("broken", HandlerFunc(func(context.Context, *models.Job) error {
			return backoff.Permanent(errors.New("bad payload"))
		}))

		job := enqueue(t, jobs, "broken")

		_, err := w.ProcessOnce(ctx)
		require.NoError(t, err)

		stored, err := jobs.Get(ctx, job.JobID)
		require.NoError(t, err)
		require.Equal(t, models.JobStateFailed, stored.State)
		require.Equal(t, 1, stored.Attempts)
	})

	t.Run("unknown kind fails job", func(t *testing.T) {
		jobs := memory.NewJobStore()
		w := newWorker(t, jobs, Config{})

		job := enqueue(t, jobs, "mystery")

		_, err := w.ProcessOnce(ctx)
		require.NoError(t, err)

		stored, err := jobs.Get(ctx, job.JobID)
		require.NoError(t, err)
		require.Equal(t, models.JobStateFailed, stored.State)
	})
}

func TestWorker_Run(t *testing.T) {
	jobs := memory.NewJobStore()
	w := newWorker(t, jobs, Config{PollInterval: 5 * time.Millisecond})

	done := make(chan struct{})
	w.Register("greet", HandlerFunc(func(context.Context, *models.Job) error {
		close(done)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	enqueue(t, jobs, "greet")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not processed")
	}

	cancel()
	require.NoError(t, <-errCh)
}

func TestWorker_RetryDelay(t *testing.T) {
	w := newWorker(t, memory.NewJobStore(), Config{RetryInitial: time.Second, RetryMax: 4 * time.Second})

	first := w.retryDelay(1)
	require.GreaterOrEqual(t, first, 500*time.Millisecond)
	require.LessOrEqual(t, first, 1500*time.Millisecond)

	late := w.retryDelay(20)
	require.LessOrEqual(t, late, 6*time.Second)
}
