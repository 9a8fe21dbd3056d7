package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/projectkeeper/internal/models"
	"github.com/wolfeidau/projectkeeper/internal/store"
)

// JobStore implements store.JobStore using in-memory storage
type JobStore struct {
	mu sync.RWMutex

	// Core job storage
	jobs   map[uuid.UUID]*models.Job // job ID -> Job
	queues map[string][]*models.Job  // queue name -> Jobs (FIFO)
	dedupe map[string]uuid.UUID      // dedupe key -> live job ID

	// Visibility timeout management
	invisibleJobs map[uuid.UUID]time.Time // job ID -> visibility expiry
	taskTokens    map[string]uuid.UUID    // task token -> job ID
	jobTokens     map[uuid.UUID]string    // job ID -> current task token (reverse map)

	// Background cleanup
	cleanupTicker *time.Ticker
	stopCleanup   chan bool

	now func() time.Time
}

// NewJobStore creates a new in-memory job store
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:          make(map[uuid.UUID]*models.Job),
		queues:        make(map[string][]*models.Job),
		dedupe:        make(map[string]uuid.UUID),
		invisibleJobs: make(map[uuid.UUID]time.Time),
		taskTokens:    make(map[string]uuid.UUID),
		jobTokens:     make(map[uuid.UUID]string),
		stopCleanup:   make(chan bool),
		now:           time.Now,
	}
}

// Start begins background cleanup operations
func (s *JobStore) Start() error {
	s.cleanupTicker = time.NewTicker(30 * time.Second)
	go s.cleanupLoop()
	return nil
}

// Stop terminates background operations
func (s *JobStore) Stop() error {
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}
	close(s.stopCleanup)
	return nil
}

// cleanupLoop runs background cleanup of expired visibility timeouts
func (s *JobStore) cleanupLoop() {
	for {
		select {
		case <-s.cleanupTicker.C:
			s.mu.Lock()
			s.requeueExpiredLocked()
			s.mu.Unlock()
		case <-s.stopCleanup:
			return
		}
	}
}

// requeueExpiredLocked returns jobs whose visibility expired back to their queues.
func (s *JobStore) requeueExpiredLocked() {
	now := s.now()
	for jobID, expiry := range s.invisibleJobs {
		if !now.After(expiry) {
			continue
		}
		job := s.jobs[jobID]
		if job == nil {
			continue
		}

		job.State = models.JobStateScheduled
		s.queues[job.Queue] = append(s.queues[job.Queue], job)

		// Clean up tracking using reverse map
		delete(s.invisibleJobs, jobID)
		if token, exists := s.jobTokens[jobID]; exists {
			delete(s.taskTokens, token)
			delete(s.jobTokens, jobID)
		}

		log.Warn().Str("job_id", jobID.String()).Msg("Job visibility expired, requeued")
	}
}

// Enqueue adds a new job to the specified queue
func (s *JobStore) Enqueue(ctx context.Context, req *store.EnqueueRequest) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for a live job with the same dedupe key
	if req.DedupeKey != "" {
		if existingID, exists := s.dedupe[req.DedupeKey]; exists {
			if job := s.jobs[existingID]; job != nil && job.State.Live() {
				clone := *job
				return &clone, nil
			}
			delete(s.dedupe, req.DedupeKey)
		}
	}

	now := s.now()
	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	job := &models.Job{
		JobID:     uuid.Must(uuid.NewV7()),
		Queue:     req.Queue,
		Kind:      req.Kind,
		DedupeKey: req.DedupeKey,
		Payload:   append([]byte(nil), req.Payload...),
		State:     models.JobStateScheduled,
		RunAt:     runAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.jobs[job.JobID] = job
	s.queues[req.Queue] = append(s.queues[req.Queue], job)
	if req.DedupeKey != "" {
		s.dedupe[req.DedupeKey] = job.JobID
	}

	log.Info().
		Str("job_id", job.JobID.String()).
		Str("queue", job.Queue).
		Str("kind", job.Kind).
		Msg("Enqueued job")

	clone := *job
	return &clone, nil
}

// Dequeue claims due jobs from the front of the queue
func (s *JobStore) Dequeue(ctx context.Context, queue string, maxJobs int, timeoutSeconds int) ([]*store.JobWithToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requeueExpiredLocked()

	queueJobs := s.queues[queue]
	if len(queueJobs) == 0 {
		return nil, nil
	}

	now := s.now()
	var results []*store.JobWithToken
	remaining := make([]*models.Job, 0, len(queueJobs))

	for _, job := range queueJobs {
		if len(results) >= maxJobs || job.RunAt.After(now) {
			remaining = append(remaining, job)
			continue
		}

		taskToken := uuid.Must(uuid.NewV7()).String()

		job.State = models.JobStateRunning
		job.Attempts++
		job.UpdatedAt = now

		s.invisibleJobs[job.JobID] = now.Add(time.Duration(timeoutSeconds) * time.Second)
		s.taskTokens[taskToken] = job.JobID
		s.jobTokens[job.JobID] = taskToken

		clone := *job
		results = append(results, &store.JobWithToken{Job: &clone, TaskToken: taskToken})
	}

	s.queues[queue] = remaining

	return results, nil
}

// UpdateVisibility extends the visibility timeout for a job
func (s *JobStore) UpdateVisibility(ctx context.Context, queue string, taskToken string, timeoutSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobID, exists := s.taskTokens[taskToken]
	if !exists {
		return store.ErrInvalidTaskToken
	}

	job := s.jobs[jobID]
	if job == nil {
		return fmt.Errorf("%w: %s", store.ErrJobNotFound, jobID)
	}
	if job.Queue != queue {
		return fmt.Errorf("%w: expected queue %s", store.ErrQueueMismatch, queue)
	}

	s.invisibleJobs[jobID] = s.now().Add(time.Duration(timeoutSeconds) * time.Second)
	job.UpdatedAt = s.now()

	return nil
}

// Complete marks a job as completed or failed and removes it from processing
func (s *JobStore) Complete(ctx context.Context, taskToken string, success bool, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.claimedLocked(taskToken)
	if err != nil {
		return err
	}

	if success {
		job.State = models.JobStateCompleted
	} else {
		job.State = models.JobStateFailed
	}
	job.LastError = lastError
	job.UpdatedAt = s.now()

	s.forgetTokenLocked(job.JobID, taskToken)
	if job.DedupeKey != "" {
		delete(s.dedupe, job.DedupeKey)
	}

	log.Info().Str("job_id", job.JobID.String()).Bool("success", success).Msg("Job completed")
	return nil
}

// Release returns a job back to the queue, runnable after delay
func (s *JobStore) Release(ctx context.Context, taskToken string, delay time.Duration, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.claimedLocked(taskToken)
	if err != nil {
		return err
	}

	now := s.now()
	job.State = models.JobStateScheduled
	job.RunAt = now.Add(delay)
	job.LastError = lastError
	job.UpdatedAt = now

	// Return job to the front of the queue
	s.queues[job.Queue] = append([]*models.Job{job}, s.queues[job.Queue]...)

	s.forgetTokenLocked(job.JobID, taskToken)

	log.Info().Str("job_id", job.JobID.String()).Str("queue", job.Queue).Dur("delay", delay).Msg("Job released back to queue")
	return nil
}

// Get returns a copy of a job
func (s *JobStore) Get(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrJobNotFound, jobID)
	}

	clone := *job
	return &clone, nil
}

func (s *JobStore) claimedLocked(taskToken string) (*models.Job, error) {
	jobID, exists := s.taskTokens[taskToken]
	if !exists {
		return nil, store.ErrInvalidTaskToken
	}

	job := s.jobs[jobID]
	if job == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrJobNotFound, jobID)
	}

	return job, nil
}

func (s *JobStore) forgetTokenLocked(jobID uuid.UUID, taskToken string) {
	delete(s.invisibleJobs, jobID)
	delete(s.taskTokens, taskToken)
	delete(s.jobTokens, jobID)
}
