package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/jobrelay/internal/actors"
	"github.com/kalambet/jobrelay/internal/metrics"
	"github.com/kalambet/jobrelay/internal/queue"
	"github.com/kalambet/jobrelay/internal/storage"
)

const maxRequestBodySize = 1 << 20

const (
	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// Store is the persistence the HTTP layer reads and enqueues into.
type Store interface {
	queue.Enqueuer
	GetJob(id string) (storage.Job, error)
	ListRuns(limit int) ([]storage.Run, error)
}

// Deps holds the dependencies of the HTTP handler.
type Deps struct {
	Runner  *Runner
	Store   Store
	Metrics *metrics.Metrics // optional; nil disables /metrics and request metrics
	Token   string           // optional bearer token for run and read routes
	Logger  *slog.Logger
}

// NewHandler builds the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/actors", handleListActors)
		r.Get("/actors/{actor_type}", handleGetActor)
		r.Get("/runs", handleListRuns(deps))

		r.Post("/run", handleRunArbitrary(deps))
		r.Post("/{actor_type}", handleRunPreset(deps))

		// {ref} is an actor type on POST and a job id on GET.
		r.Route("/async", func(r chi.Router) {
			r.Post("/run", handleEnqueueArbitrary(deps))
			r.Post("/{ref}", handleEnqueuePreset(deps))
			r.Get("/{ref}", handleGetAsync(deps))
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListActors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, actors.List())
}

func handleGetActor(w http.ResponseWriter, r *http.Request) {
	actorType := chi.URLParam(r, "actor_type")
	md, ok := actors.Lookup(actorType)
	if !ok {
		httpError(w, http.StatusNotFound, typeNotFound, "unknown actor type: %s", actorType)
		return
	}
	writeJSON(w, http.StatusOK, md)
}

// decodeBody reads a size-limited JSON body into v and reports a 400 on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, typeInvalidRequest, "invalid request body: %v", err)
		return false
	}
	return true
}

// detached keeps request values but drops cancellation; a run continues after
// the client disconnects.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func handleRunPreset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorType := chi.URLParam(r, "actor_type")
		if !actors.Known(actorType) {
			httpError(w, http.StatusNotFound, typeNotFound, "unknown actor type: %s", actorType)
			return
		}
		var jc JobCreation
		if !decodeBody(w, r, &jc) {
			return
		}

		resp, err := deps.Runner.RunPreset(detached(r), actorType, jc)
		if err != nil {
			deps.Logger.Error("preset run failed", "actor_type", actorType, "error", err)
			runError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleRunArbitrary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var aj ArbitraryActorJob
		if !decodeBody(w, r, &aj) {
			return
		}

		resp, err := deps.Runner.RunArbitrary(detached(r), aj)
		if err != nil {
			deps.Logger.Error("arbitrary run failed", "actor_id", aj.Settings.ActorID, "error", err)
			runError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type enqueueResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func handleEnqueuePreset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorType := chi.URLParam(r, "ref")
		if !actors.Known(actorType) {
			httpError(w, http.StatusNotFound, typeNotFound, "unknown actor type: %s", actorType)
			return
		}
		var jc JobCreation
		if !decodeBody(w, r, &jc) {
			return
		}
		if err := deps.Runner.CheckPreset(actorType, jc); err != nil {
			runError(w, err)
			return
		}
		enqueue(w, deps, kindPreset, actorType, jc)
	}
}

func handleEnqueueArbitrary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var aj ArbitraryActorJob
		if !decodeBody(w, r, &aj) {
			return
		}
		if err := deps.Runner.CheckArbitrary(aj); err != nil {
			runError(w, err)
			return
		}
		enqueue(w, deps, kindArbitrary, "", aj)
	}
}

func enqueue(w http.ResponseWriter, deps Deps, kind, actorType string, body any) {
	raw, err := json.Marshal(body)
	if err != nil {
		httpError(w, http.StatusInternalServerError, typeInternal, "encoding job: %v", err)
		return
	}
	id, err := queue.Enqueue(deps.Store, asyncPayload{Kind: kind, ActorType: actorType, Job: raw})
	if err != nil {
		deps.Logger.Error("enqueue failed", "kind", kind, "error", err)
		httpError(w, http.StatusInternalServerError, typeInternal, "%v", err)
		return
	}
	deps.Logger.Info("async run queued", "job_id", id, "kind", kind, "actor_type", actorType)
	writeJSON(w, http.StatusAccepted, enqueueResponse{ID: id, Status: statusQueued})
}

const statusQueued = "queued"

// AsyncJob is the public view of a queued run.
type AsyncJob struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func asyncView(j storage.Job) AsyncJob {
	v := AsyncJob{
		ID:        j.ID,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
	switch j.Status {
	case storage.JobPending:
		v.Status = statusQueued
	case storage.JobCompleted:
		if j.ResultJSON != "" {
			v.Response = json.RawMessage(j.ResultJSON)
		}
	case storage.JobFailed:
		v.Error = j.LastError
	}
	return v
}

func handleGetAsync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "ref")
		j, err := deps.Store.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, typeNotFound, "async job not found: %s", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, typeInternal, "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, asyncView(j))
	}
}

// RunRecord is the public view of a run history entry.
type RunRecord struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	ActorType  string    `json:"actor_type,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ItemCount  int       `json:"item_count"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRunsLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, typeInvalidRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxRunsLimit)
		}

		runs, err := deps.Store.ListRuns(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, typeInternal, "%v", err)
			return
		}
		out := make([]RunRecord, len(runs))
		for i, run := range runs {
			out[i] = RunRecord{
				ID:         run.ID,
				Target:     run.Target,
				ActorType:  run.ActorType,
				Status:     run.Status,
				Error:      run.Error,
				ItemCount:  run.ItemCount,
				StartedAt:  run.StartedAt,
				DurationMS: run.Duration.Milliseconds(),
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
