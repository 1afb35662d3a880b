// Package job drives a remote job from submission to a normalized result:
// submit, poll until terminal, fetch, extract items and compute the next state.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/jobrelay/internal/extraction"
	"github.com/kalambet/jobrelay/internal/remote"
	"github.com/kalambet/jobrelay/internal/statemap"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 300
)

// Request is everything one run needs. It is not modified by Run.
type Request struct {
	Target        string
	Payload       map[string]any
	FieldMappings []extraction.FieldMapping
	StateMappings []statemap.Rule
	PreviousState string

	// Label names the run in observer events; Target is used when empty.
	Label string
}

// Response is the complete outcome of a successful run.
type Response struct {
	State  string                  `json:"state"`
	Result []extraction.ExportItem `json:"result"`
}

// Orchestrator runs jobs against a remote client. It holds no per-run state
// and is safe for concurrent use.
type Orchestrator struct {
	client       remote.Client
	observer     Observer
	pollInterval time.Duration
	maxAttempts  int
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver sets the lifecycle observer.
func WithObserver(o Observer) Option {
	return func(or *Orchestrator) {
		if o != nil {
			or.observer = o
		}
	}
}

// WithPollInterval sets the pause between status checks. Zero disables it.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxAttempts bounds the number of status checks before a run times out.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithClock overrides the source of the run start time.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an Orchestrator that submits jobs through client.
func NewOrchestrator(client remote.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:       client,
		observer:     nopObserver{},
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one job. It returns either a complete Response or an error,
// never both. Errors wrap one of the package's sentinels, or the context's
// error when ctx is cancelled mid-run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	start := o.now().UTC()
	sctx := statemap.Context{Start: start}
	logger := o.logger.With("target", req.Target)

	label := req.Label
	if label == "" {
		label = req.Target
	}

	o.observer.JobStarted(label)
	resp, err := o.run(ctx, logger, req, sctx)
	elapsed := o.now().Sub(start).Seconds()
	if err != nil {
		o.observer.JobFailed(label, elapsed)
		logger.Warn("job failed", "error", err, "seconds", elapsed)
		return nil, err
	}
	o.observer.JobSucceeded(label, elapsed)
	logger.Info("job succeeded", "items", len(resp.Result), "seconds", elapsed)
	return resp, nil
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, req Request, sctx statemap.Context) (*Response, error) {
	// A broken rule must never cost a remote run.
	if err := statemap.Validate(req.PreviousState, req.StateMappings, sctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	handle, err := o.client.Submit(ctx, req.Target, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteSubmit, err)
	}
	logger = logger.With("run_id", handle.RunID)
	logger.Info("remote job submitted", "result_set_id", handle.ResultSetID)

	if err := o.waitForCompletion(ctx, logger, handle.RunID); err != nil {
		return nil, err
	}

	records, err := o.client.FetchResults(ctx, handle.ResultSetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteFetch, err)
	}

	items := extraction.Extract(records, req.FieldMappings)
	if dropped := len(records) - len(items); dropped > 0 {
		logger.Debug("records dropped during extraction", "dropped", dropped, "total", len(records))
	}

	state, err := statemap.Compute(req.PreviousState, req.StateMappings, sctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExpression, err)
	}

	return &Response{State: state, Result: items}, nil
}

// waitForCompletion polls until the run succeeds, fails or exhausts the
// attempt bound. Status errors and Running count against the same bound.
func (o *Orchestrator) waitForCompletion(ctx context.Context, logger *slog.Logger, runID string) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if attempt >= o.maxAttempts {
			if lastErr != nil {
				return fmt.Errorf("%w after %d attempts (last status error: %w)", ErrTimedOut, attempt, lastErr)
			}
			return fmt.Errorf("%w after %d attempts", ErrTimedOut, attempt)
		}

		status, err := o.client.PollStatus(ctx, runID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return fmt.Errorf("polling run %s: %w", runID, ctx.Err())
			}
			lastErr = err
			logger.Warn("status check failed", "attempt", attempt+1, "error", err)
		case status == remote.StatusSucceeded:
			return nil
		case status == remote.StatusFailed:
			return fmt.Errorf("%w: run %s", ErrRemoteFailed, runID)
		default:
			logger.Debug("remote job running", "attempt", attempt+1)
		}

		if err := o.sleep(ctx); err != nil {
			return fmt.Errorf("polling run %s: %w", runID, err)
		}
	}
}

func (o *Orchestrator) sleep(ctx context.Context) error {
	if o.pollInterval <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(o.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
