package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

func TestJobStoreRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("release returns job to queue", func(t *testing.T) {
		st := NewJobStore()
		require.NoError(t, st.Start())
		defer func() { _ = st.Stop() }()

		job, err := st.Enqueue(ctx, &store.EnqueueRequest{Queue: "default", Kind: "k", Payload: []byte(`{}`)})
		require.NoError(t, err)

		jobs, err := st.Dequeue(ctx, "default", 1, 300)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		require.Equal(t, job.JobID, jobs[0].Job.JobID)
		require.Equal(t, models.JobStateRunning, jobs[0].Job.State)
		require.Equal(t, 1, jobs[0].Job.Attempts)

		empty, err := st.Dequeue(ctx, "default", 1, 300)
		require.NoError(t, err)
		require.Empty(t, empty)

		require.NoError(t, st.Release(ctx, jobs[0].TaskToken, 0, "transient"))

		got, err := st.Get(ctx, job.JobID)
		require.NoError(t, err)
		require.Equal(t, models.JobStateScheduled, got.State)
		require.Equal(t, "transient", got.LastError)

		again, err := st.Dequeue(ctx, "default", 1, 300)
		require.NoError(t, err)
		require.Len(t, again, 1)
		require.Equal(t, 2, again[0].Job.Attempts)
	})

	t.Run("release delay hides job until due", func(t *testing.T) {
		st := NewJobStore()
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		st.now = func() time.Time { return now }

		_, err := st.Enqueue(ctx, &store.EnqueueRequest{Queue: "default", Kind: "k"})
		require.NoError(t, err)

		jobs, err := st.Dequeue(ctx, "default", 1, 300)
		require.NoError(t, err)
		require.NoError(t, st.Release(ctx, jobs[0].TaskToken, time.Minute, ""))

		none, err := st.Dequeue(ctx, "default", 1, 300)
		require.NoError(t, err)
		require.Empty(t, none)

		now = now.Add(2 * time.Minute)
		due, err := st.Dequeue(ctx, "default", 1, 300)
		require.NoError(t, err)
		require.Len(t, due, 1)
	})

	t.Run("stale token rejected after release", func(t *testing.T) {
		st := NewJobStore()

		_, err := st.Enqueue(ctx, &store.EnqueueRequest{Queue: "default", Kind: "k"})
		require.NoError(t, err)

		jobs, err := st.Dequeue(ctx, "default", 1, 300)
		require.NoError(t, err)
		require.NoError(t, st.Release(ctx, jobs[0].TaskToken, 0, ""))

		require.ErrorIs(t, st.Release(ctx, jobs[0].TaskToken, 0, ""), store.ErrInvalidTaskToken)
		require.ErrorIs(t, st.Complete(ctx, jobs[0].TaskToken, true, ""), store.ErrInvalidTaskToken)
	})
}

func TestJobStoreComplete(t *testing.T) {
	ctx := context.Background()

	t.Run("success and failure states", func(t *testing.T) {
		st := NewJobStore()

		ok, err := st.Enqueue(ctx, &store.EnqueueRequest{Queue: "q", Kind: "k"})
		require.NoError(t, err)
		bad, err := st.Enqueue(ctx, &store.EnqueueRequest{Queue: "q", Kind: "k"})
		require.NoError(t, err)

		jobs, err := st.Dequeue(ctx, "q", 2, 300)
		require.NoError(t, err)
		require.Len(t, jobs, 2)

		require.NoError(t, st.Complete(ctx, jobs[0].TaskToken, true, ""))
		require.NoError(t, st.Complete(ctx, jobs[1].TaskToken, false, "boom"))

		got, err := st.Get(ctx, ok.JobID)
		require.NoError(t, err)
		require.Equal(t, models.JobStateCompleted, got.State)

		got, err = st.Get(ctx, bad.JobID)
		require.NoError(t, err)
		require.Equal(t, models.JobStateFailed, got.State)
		require.Equal(t, "boom", got.LastError)
	})

	t.Run("visibility queue mismatch", func(t *testing.T) {
		st := NewJobStore()

		_, err := st.Enqueue(ctx, &store.EnqueueRequest{Queue: "q", Kind: "k"})
		require.NoError(t, err)
		jobs, err := st.Dequeue(ctx, "q", 1, 300)
		require.NoError(t, err)

		require.NoError(t, st.UpdateVisibility(ctx, "q", jobs[0].TaskToken, 600))
		require.ErrorIs(t, st.UpdateVisibility(ctx, "other", jobs[0].TaskToken, 600), store.ErrQueueMismatch)
		require.ErrorIs(t, st.UpdateVisibility(ctx, "q", "unknown", 600), store.ErrInvalidTaskToken)
	})

	t.Run("expired visibility requeues", func(t *testing.T) {
		st := NewJobStore()
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		st.now = func() time.Time { return now }

		_, err := st.Enqueue(ctx, &store.EnqueueRequest{Queue: "q", Kind: "k"})
		require.NoError(t, err)
		first, err := st.Dequeue(ctx, "q", 1, 30)
		require.NoError(t, err)
		require.Len(t, first, 1)

		now = now.Add(time.Minute)
		second, err := st.Dequeue(ctx, "q", 1, 30)
		require.NoError(t, err)
		require.Len(t, second, 1)
		require.Equal(t, first[0].Job.JobID, second[0].Job.JobID)

		require.ErrorIs(t, st.Complete(ctx, first[0].TaskToken, true, ""), store.ErrInvalidTaskToken)
	})
}

func TestJobStoreDedupe(t *testing.T) {
	ctx := context.Background()
	st := NewJobStore()
	req := &store.EnqueueRequest{Queue: "q", Kind: "k", DedupeKey: "teardown:1"}

	first, err := st.Enqueue(ctx, req)
	require.NoError(t, err)
	second, err := st.Enqueue(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.JobID, second.JobID)

	jobs, err := st.Dequeue(ctx, "q", 10, 300)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	running, err := st.Enqueue(ctx, req)
	require.NoError(t, err)
	require.Equal(t, first.JobID, running.JobID)

	require.NoError(t, st.Complete(ctx, jobs[0].TaskToken, true, ""))

	third, err := st.Enqueue(ctx, req)
	require.NoError(t, err)
	require.NotEqual(t, first.JobID, third.JobID)
}

func TestMemoryJobStoreImplementsInterface(t *testing.T) {
	var _ store.JobStore = (*JobStore)(nil)
	var _ store.ClaimStore = (*ClaimStore)(nil)
}
