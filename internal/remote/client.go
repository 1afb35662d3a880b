// Package remote defines the capability interface the job orchestrator uses
// to drive a job on a remote execution platform. Transport, authentication and
// endpoint construction live in the implementations (see internal/apify).
package remote

import (
	"context"
	"encoding/json"
	"fmt"
)

// Status is the coarse lifecycle state of a remote run as seen by the poller.
type Status int

const (
	StatusRunning Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// RunHandle identifies a submitted remote run and the result set it writes to.
type RunHandle struct {
	RunID       string
	ResultSetID string
}

// Client submits jobs to a remote platform, checks on them, and downloads
// their results.
type Client interface {
	// Submit starts a run of target with the given request payload.
	Submit(ctx context.Context, target string, payload map[string]any) (RunHandle, error)

	// PollStatus reports the current status of a run. An error means the
	// status could not be determined, not that the run failed.
	PollStatus(ctx context.Context, runID string) (Status, error)

	// FetchResults returns the raw records of a result set. Records are
	// opaque JSON values; they are not required to be objects.
	FetchResults(ctx context.Context, resultSetID string) ([]json.RawMessage, error)
}
