package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Run is one entry of the run history.
type Run struct {
	ID        string
	Target    string
	ActorType string // preset type, empty for arbitrary actors
	Status    string
	Error     string
	ItemCount int
	StartedAt time.Time
	Duration  time.Duration
}

// Job is an entry of the async work queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
	ResultJSON  string
}
