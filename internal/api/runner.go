package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/jobrelay/internal/actors"
	"github.com/kalambet/jobrelay/internal/apify"
	"github.com/kalambet/jobrelay/internal/job"
	"github.com/kalambet/jobrelay/internal/remote"
	"github.com/kalambet/jobrelay/internal/storage"
)

// ErrMissingToken is returned when neither the request nor the server
// configuration supplies a platform token.
var ErrMissingToken = errors.New("no apify token: set settings.token or apify.token")

// ClientSource returns the remote client for a request token. An empty token
// selects the configured default.
type ClientSource func(token string) (remote.Client, error)

// ApifyClients derives per-token clients from base. They share its rate
// limiter and transport.
func ApifyClients(base *apify.Client) ClientSource {
	return func(token string) (remote.Client, error) {
		c := base.WithToken(token)
		if !c.HasToken() {
			return nil, ErrMissingToken
		}
		return c, nil
	}
}

// RunRecorder stores run history.
type RunRecorder interface {
	StartRun(r storage.Run) error
	FinishRun(id string, itemCount int, d time.Duration, errMsg string) error
}

// RunnerConfig holds the collaborators of a Runner. Only Clients is required.
type RunnerConfig struct {
	Clients    ClientSource
	History    RunRecorder
	Observer   job.Observer
	JobOptions []job.Option
	Logger     *slog.Logger
}

// Runner turns request DTOs into orchestrated runs.
type Runner struct {
	clients  ClientSource
	history  RunRecorder
	observer job.Observer
	opts     []job.Option
	logger   *slog.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		clients:  cfg.Clients,
		history:  cfg.History,
		observer: cfg.Observer,
		opts:     cfg.JobOptions,
		logger:   cfg.Logger,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// RunPreset runs the preset actorType with the settings of jc.
func (r *Runner) RunPreset(ctx context.Context, actorType string, jc JobCreation) (*job.Response, error) {
	req, token, err := presetRequest(actorType, jc)
	if err != nil {
		if actors.Known(actorType) {
			r.rejected(actorType)
		}
		return nil, err
	}
	return r.run(ctx, req, token, actorType)
}

// RunArbitrary runs the actor named in aj.
func (r *Runner) RunArbitrary(ctx context.Context, aj ArbitraryActorJob) (*job.Response, error) {
	req, token, err := arbitraryRequest(aj)
	if err != nil {
		if aj.Settings.ActorID != "" {
			r.rejected(aj.Settings.ActorID)
		}
		return nil, err
	}
	return r.run(ctx, req, token, "")
}

// rejected reports a run refused before reaching the orchestrator as a started
// and failed job. Unknown preset names and empty actor ids are not reported.
func (r *Runner) rejected(label string) {
	if r.observer == nil {
		return
	}
	r.observer.JobStarted(label)
	r.observer.JobFailed(label, 0)
}

func presetRequest(actorType string, jc JobCreation) (job.Request, string, error) {
	p, err := actors.Parse(actorType, jc.Settings.ActorConfig)
	if err != nil {
		return job.Request{}, "", err
	}
	body, err := p.Body()
	if err != nil {
		return job.Request{}, "", fmt.Errorf("%w: %w", job.ErrValidation, err)
	}
	state := previousState(jc.State)
	if err := MergeState(body, state, jc.Settings.StateMapping); err != nil {
		return job.Request{}, "", err
	}
	return job.Request{
		Target:        p.ActorName(),
		Payload:       body,
		FieldMappings: jc.Settings.KeyMapping,
		StateMappings: jc.Settings.StateMapping,
		PreviousState: state,
		Label:         actorType,
	}, jc.Settings.Token, nil
}

func arbitraryRequest(aj ArbitraryActorJob) (job.Request, string, error) {
	if aj.Settings.ActorID == "" {
		return job.Request{}, "", fmt.Errorf("%w: settings.actor_id is required", job.ErrValidation)
	}
	body := inputBody(aj.Settings.ActorInput)
	state := previousState(aj.State)
	if err := MergeState(body, state, aj.Settings.StateMapping); err != nil {
		return job.Request{}, "", err
	}
	return job.Request{
		Target:        aj.Settings.ActorID,
		Payload:       body,
		FieldMappings: aj.Settings.KeyMapping,
		StateMappings: aj.Settings.StateMapping,
		PreviousState: state,
	}, aj.Settings.Token, nil
}

func (r *Runner) run(ctx context.Context, req job.Request, token, actorType string) (*job.Response, error) {
	client, err := r.clients(token)
	if err != nil {
		label := req.Label
		if label == "" {
			label = req.Target
		}
		r.rejected(label)
		return nil, err
	}

	opts := append([]job.Option{
		job.WithObserver(r.observer),
		job.WithLogger(r.logger),
	}, r.opts...)
	orch := job.NewOrchestrator(client, opts...)

	runID := uuid.NewString()
	start := time.Now()
	r.startRun(storage.Run{ID: runID, Target: req.Target, ActorType: actorType, StartedAt: start})

	resp, err := orch.Run(ctx, req)

	var (
		items  int
		errMsg string
	)
	if err != nil {
		errMsg = err.Error()
	} else {
		items = len(resp.Result)
	}
	r.finishRun(runID, items, time.Since(start), errMsg)
	return resp, err
}

func (r *Runner) startRun(run storage.Run) {
	if r.history == nil {
		return
	}
	if err := r.history.StartRun(run); err != nil {
		r.logger.Warn("recording run start", "run_id", run.ID, "error", err)
	}
}

func (r *Runner) finishRun(id string, items int, d time.Duration, errMsg string) {
	if r.history == nil {
		return
	}
	if err := r.history.FinishRun(id, items, d, errMsg); err != nil {
		r.logger.Warn("recording run outcome", "run_id", id, "error", err)
	}
}

// Kinds of async payload.
const (
	kindPreset    = "preset"
	kindArbitrary = "arbitrary"
)

// asyncPayload is the queued form of a run request.
type asyncPayload struct {
	Kind      string          `json:"kind"`
	ActorType string          `json:"actor_type,omitempty"`
	Job       json.RawMessage `json:"job"`
}

// Execute runs a queued payload and returns the encoded response. It
// implements queue.Executor.
func (r *Runner) Execute(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var p asyncPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decoding async payload: %w", err)
	}

	var (
		resp *job.Response
		err  error
	)
	switch p.Kind {
	case kindPreset:
		var jc JobCreation
		if err := json.Unmarshal(p.Job, &jc); err != nil {
			return nil, fmt.Errorf("decoding preset job: %w", err)
		}
		resp, err = r.RunPreset(ctx, p.ActorType, jc)
	case kindArbitrary:
		var aj ArbitraryActorJob
		if err := json.Unmarshal(p.Job, &aj); err != nil {
			return nil, fmt.Errorf("decoding arbitrary job: %w", err)
		}
		resp, err = r.RunArbitrary(ctx, aj)
	default:
		return nil, fmt.Errorf("unknown async payload kind %q", p.Kind)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

// CheckPreset validates a preset request without running it.
func (r *Runner) CheckPreset(actorType string, jc JobCreation) error {
	_, token, err := presetRequest(actorType, jc)
	if err != nil {
		return err
	}
	_, err = r.clients(token)
	return err
}

// CheckArbitrary is CheckPreset for arbitrary actor requests.
func (r *Runner) CheckArbitrary(aj ArbitraryActorJob) error {
	_, token, err := arbitraryRequest(aj)
	if err != nil {
		return err
	}
	_, err = r.clients(token)
	return err
}
