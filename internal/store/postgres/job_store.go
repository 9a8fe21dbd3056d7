package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

const jobColumns = `job_id, queue, kind, COALESCE(dedupe_key, ''), payload, state, attempts,
	run_at, last_error, created_at, updated_at`

// JobStore implements store.JobStore using PostgreSQL.
// Jobs are claimed with SELECT FOR UPDATE SKIP LOCKED and hidden behind a visibility
// timeout; a claim is identified by an HMAC signed task token.
type JobStore struct {
	pool *pgxpool.Pool
	cfg  *JobStoreConfig

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewJobStore creates a PostgreSQL-backed job store on a shared pool.
func NewJobStore(pool *pgxpool.Pool, cfg *JobStoreConfig) (*JobStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &JobStore{
		pool:   pool,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}, nil
}

// Start launches the finished job sweep when a retention is configured.
func (s *JobStore) Start() error {
	if s.cfg.CompletedRetentionHours <= 0 {
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sweepFinished()
	}()

	return nil
}

// Stop waits for background work. The pool is owned by the caller.
func (s *JobStore) Stop() error {
	close(s.stopCh)
	s.wg.Wait()
	return nil
}

func (s *JobStore) sweepFinished() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := s.cfg.queryContext(context.Background())
			result, err := s.pool.Exec(ctx, `
				DELETE FROM jobs
				WHERE state IN ('completed', 'failed')
				  AND updated_at < NOW() - $1 * INTERVAL '1 hour'
			`, s.cfg.CompletedRetentionHours)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("Failed to sweep finished jobs")
				continue
			}
			if result.RowsAffected() > 0 {
				log.Info().Int64("deleted", result.RowsAffected()).Msg("Swept finished jobs")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Enqueue schedules a job, returning the live job with the same dedupe key if one exists.
func (s *JobStore) Enqueue(ctx context.Context, req *store.EnqueueRequest) (*models.Job, error) {
	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	payload := req.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var dedupeKey *string
	if req.DedupeKey != "" {
		dedupeKey = &req.DedupeKey
	}

	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}

	query := `
		INSERT INTO jobs (
			job_id, queue, kind, dedupe_key, payload, state, attempts, run_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, NOW(), NOW())
		ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL AND state IN ('scheduled', 'running')
		DO NOTHING
		RETURNING ` + jobColumns

	// A conflicting job may finish between the insert and the lookup, so try twice.
	for range 2 {
		job, err := scanJob(s.pool.QueryRow(ctx, query,
			uuid.Must(uuid.NewV7()),
			req.Queue,
			req.Kind,
			dedupeKey,
			payload,
			string(models.JobStateScheduled),
			runAt,
		))
		if err == nil {
			log.Info().
				Str("job_id", job.JobID.String()).
				Str("queue", job.Queue).
				Str("kind", job.Kind).
				Msg("Enqueued job")
			return job, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, mapPostgresError(err)
		}

		existing, err := scanJob(s.pool.QueryRow(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE dedupe_key = $1 AND state IN ('scheduled', 'running')
		`, req.DedupeKey))
		if err == nil {
			log.Debug().
				Str("job_id", existing.JobID.String()).
				Str("dedupe_key", req.DedupeKey).
				Msg("Live job already exists (deduplicated)")
			return existing, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, mapPostgresError(err)
		}
	}

	return nil, fmt.Errorf("concurrent enqueue conflict for dedupe key %s", req.DedupeKey)
}

// Dequeue claims due jobs with SELECT FOR UPDATE SKIP LOCKED. Running jobs whose
// visibility expired are claimable again.
func (s *JobStore) Dequeue(ctx context.Context, queue string, maxJobs int, timeoutSeconds int) ([]*store.JobWithToken, error) {
	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	query := `
		WITH claimable AS (
			SELECT job_id
			FROM jobs
			WHERE queue = $1
			  AND (
			    (state = 'scheduled' AND run_at <= NOW())
			    OR (state = 'running' AND visibility_until < NOW())
			  )
			ORDER BY run_at, job_id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs
		SET
			state = 'running',
			attempts = jobs.attempts + 1,
			visibility_until = NOW() + $3 * INTERVAL '1 second',
			receipt_handle = gen_random_uuid(),
			updated_at = NOW()
		FROM claimable
		WHERE jobs.job_id = claimable.job_id
		RETURNING jobs.receipt_handle::TEXT, ` + qualifiedJobColumns

	rows, err := s.pool.Query(ctx, query, queue, maxJobs, timeoutSeconds)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var results []*store.JobWithToken
	for rows.Next() {
		var receiptHandle string
		job, err := scanJobWith(rows, &receiptHandle)
		if err != nil {
			return nil, mapPostgresError(err)
		}

		results = append(results, &store.JobWithToken{
			Job:       job,
			TaskToken: s.encodeTaskToken(job.JobID.String(), job.Queue, receiptHandle),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	if len(results) > 0 {
		log.Info().
			Str("queue", queue).
			Int("dequeued", len(results)).
			Int("max_jobs", maxJobs).
			Msg("Dequeued jobs")
	}

	return results, nil
}

// UpdateVisibility extends the visibility timeout of a claimed job. The receipt handle is kept.
func (s *JobStore) UpdateVisibility(ctx context.Context, queue string, taskToken string, timeoutSeconds int) error {
	tt, err := s.decodeTaskToken(taskToken)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid task token")
		return err
	}

	if tt.Queue != queue {
		return fmt.Errorf("%w: expected %s, got %s", store.ErrQueueMismatch, queue, tt.Queue)
	}

	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET
			visibility_until = NOW() + $1 * INTERVAL '1 second',
			updated_at = NOW()
		WHERE job_id = $2
		  AND receipt_handle = $3::UUID
		  AND queue = $4
		  AND state = 'running'
	`, timeoutSeconds, tt.JobID, tt.ReceiptHandle, queue)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job not found or receipt handle mismatch", store.ErrJobNotFound)
	}

	return nil
}

// Complete marks a claimed job completed or failed, freeing its dedupe key.
func (s *JobStore) Complete(ctx context.Context, taskToken string, success bool, lastError string) error {
	tt, err := s.decodeTaskToken(taskToken)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid task token")
		return err
	}

	finalState := models.JobStateCompleted
	if !success {
		finalState = models.JobStateFailed
	}

	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET
			state = $1,
			visibility_until = NULL,
			receipt_handle = NULL,
			last_error = $2,
			updated_at = NOW()
		WHERE job_id = $3
		  AND receipt_handle = $4::UUID
	`, string(finalState), lastError, tt.JobID, tt.ReceiptHandle)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job not found or receipt handle mismatch", store.ErrJobNotFound)
	}

	log.Info().
		Str("job_id", tt.JobID).
		Str("state", string(finalState)).
		Msg("Completed job")

	return nil
}

// Release returns a claimed job to the queue, runnable again after delay.
func (s *JobStore) Release(ctx context.Context, taskToken string, delay time.Duration, lastError string) error {
	tt, err := s.decodeTaskToken(taskToken)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid task token")
		return err
	}

	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET
			state = 'scheduled',
			run_at = NOW() + $1 * INTERVAL '1 millisecond',
			visibility_until = NULL,
			receipt_handle = NULL,
			last_error = $2,
			updated_at = NOW()
		WHERE job_id = $3
		  AND receipt_handle = $4::UUID
	`, delay.Milliseconds(), lastError, tt.JobID, tt.ReceiptHandle)
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: job not found or receipt handle mismatch", store.ErrJobNotFound)
	}

	log.Info().
		Str("job_id", tt.JobID).
		Dur("delay", delay).
		Msg("Released job back to queue")

	return nil
}

// Get returns a job by ID.
func (s *JobStore) Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	ctx, cancel := s.cfg.queryContext(ctx)
	defer cancel()

	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrJobNotFound, jobID)
		}
		return nil, mapPostgresError(err)
	}

	return job, nil
}

const qualifiedJobColumns = `jobs.job_id, jobs.queue, jobs.kind, COALESCE(jobs.dedupe_key, ''), jobs.payload,
	jobs.state, jobs.attempts, jobs.run_at, jobs.last_error, jobs.created_at, jobs.updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	return scanJobWith(row)
}

// scanJobWith scans leading extra columns into prefix before the job columns.
func scanJobWith(row pgx.Row, prefix ...any) (*models.Job, error) {
	var (
		job   models.Job
		state string
	)

	dest := append(prefix,
		&job.JobID,
		&job.Queue,
		&job.Kind,
		&job.DedupeKey,
		&job.Payload,
		&state,
		&job.Attempts,
		&job.RunAt,
		&job.LastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	job.State = models.JobState(state)
	return &job, nil
}
