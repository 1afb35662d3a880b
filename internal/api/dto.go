package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/kalambet/jobrelay/internal/extraction"
	"github.com/kalambet/jobrelay/internal/job"
	"github.com/kalambet/jobrelay/internal/statemap"
)

// emptyState is used when a request carries no previous state.
const emptyState = "{}"

// JobSettings configures a preset run.
type JobSettings struct {
	ActorConfig  json.RawMessage           `json:"actor_config"`
	Token        string                    `json:"token,omitempty"`
	KeyMapping   []extraction.FieldMapping `json:"key_mapping"`
	StateMapping []statemap.Rule           `json:"state_mapping,omitempty"`
}

// JobCreation is the body of POST /{actor_type}.
type JobCreation struct {
	Settings JobSettings `json:"settings"`
	State    string      `json:"state"`
}

// ArbitrarySettings configures a run of any actor by id.
type ArbitrarySettings struct {
	ActorID      string                    `json:"actor_id"`
	ActorInput   json.RawMessage           `json:"actor_input"`
	Token        string                    `json:"token,omitempty"`
	KeyMapping   []extraction.FieldMapping `json:"key_mapping"`
	StateMapping []statemap.Rule           `json:"state_mapping,omitempty"`
}

// ArbitraryActorJob is the body of POST /run.
type ArbitraryActorJob struct {
	Settings ArbitrarySettings `json:"settings"`
	State    string            `json:"state"`
}

func previousState(s string) string {
	if s == "" {
		return emptyState
	}
	return s
}

// MergeState copies values of the previous state into body: for every rule
// whose From key is present in state, body[To] takes that value. Rules with
// an absent key are skipped.
func MergeState(body map[string]any, state string, rules []statemap.Rule) error {
	if len(rules) == 0 {
		return nil
	}
	for _, r := range rules {
		raw, ok, err := statemap.Lookup(state, r.From)
		if err != nil {
			return fmt.Errorf("%w: %w", job.ErrValidation, err)
		}
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%w: decoding state key %q: %w", job.ErrValidation, r.From, err)
		}
		body[r.To] = v
	}
	return nil
}

// inputBody decodes an arbitrary actor's input. Anything other than a JSON
// object yields an empty body.
func inputBody(raw json.RawMessage) map[string]any {
	body := map[string]any{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return body
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return body
	}
	return m
}
