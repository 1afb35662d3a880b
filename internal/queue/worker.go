// Package queue runs actor jobs submitted through the async endpoints. Jobs
// live in the storage job table and are executed one at a time.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/jobrelay/internal/storage"
)

// TypeActorRun is the job type of an async actor run.
const TypeActorRun = "actor_run"

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id, resultJSON string) error
	FailJob(id, errMsg string) error
	CountPendingJobs() (int, error)
}

// Enqueuer adds jobs to the queue.
type Enqueuer interface {
	EnqueueJob(job storage.Job) error
}

// Executor runs the payload of one job and returns its JSON result.
type Executor interface {
	Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// DepthReporter receives the number of pending jobs after every poll.
type DepthReporter interface {
	SetQueuePending(n int)
}

// Enqueue stores payload as a new actor_run job and returns its id. Each job
// gets a single attempt: a retried job would submit a second remote run.
func Enqueue(store Enqueuer, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encoding job payload: %w", err)
	}
	id := uuid.NewString()
	err = store.EnqueueJob(storage.Job{
		ID:          id,
		Type:        TypeActorRun,
		PayloadJSON: string(data),
		MaxAttempts: 1,
	})
	if err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	return id, nil
}

// Worker processes actor_run jobs from the queue.
type Worker struct {
	store  JobStore
	exec   Executor
	depth  DepthReporter
	poll   time.Duration
	logger *slog.Logger
}

// NewWorker creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, exec Executor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:  store,
		exec:   exec,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// SetDepthReporter registers a gauge for the pending job count.
func (w *Worker) SetDepthReporter(d DepthReporter) {
	w.depth = d
}

// SetLogger replaces the worker's logger.
func (w *Worker) SetLogger(l *slog.Logger) {
	if l != nil {
		w.logger = l
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("queue worker started", "poll_interval", w.poll)
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and executes a single job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	w.reportDepth()

	job, err := w.store.ClaimNextJob([]string{TypeActorRun})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	logger := w.logger.With("job_id", job.ID)
	logger.Info("async job claimed")

	result, err := w.exec.Execute(ctx, json.RawMessage(job.PayloadJSON))
	if err != nil {
		logger.Warn("async job failed", "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			logger.Error("failed to mark job as failed", "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID, string(result)); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	logger.Info("async job completed")
	return true, nil
}

func (w *Worker) reportDepth() {
	if w.depth == nil {
		return
	}
	n, err := w.store.CountPendingJobs()
	if err != nil {
		w.logger.Debug("counting pending jobs", "error", err)
		return
	}
	w.depth.SetQueuePending(n)
}
