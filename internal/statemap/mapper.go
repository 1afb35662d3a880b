// Package statemap computes the next persisted state blob of a job from the
// previous one and an ordered list of mapping rules.
//
// A rule whose Update begins with Sigil is an expression evaluated in a small
// sandbox that exposes start_date (the run's start timestamp),
// format_date(t, "%Y-%m-%d") and sub_days(t, n). Any other rule stores its
// Update text verbatim under the key From. The To field is not consulted by
// Compute; it is used only when previous state is merged into a request body.
package statemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sigil marks an Update value as an expression.
const Sigil = "$"

var (
	// ErrInvalidState is returned when the previous state is not a JSON object.
	ErrInvalidState = errors.New("previous state is not a JSON object")
	// ErrExpression is returned when a rule's expression fails to evaluate.
	ErrExpression = errors.New("state mapping expression failed")
)

// Rule is one state-mapping rule.
type Rule struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Update string `json:"update"`
}

// IsExpression reports whether the rule's Update is a sigil expression.
func (r Rule) IsExpression() bool {
	return strings.HasPrefix(r.Update, Sigil)
}

// Context carries per-run values visible to expressions.
type Context struct {
	Start time.Time
}

// NewContext returns a Context whose start time is now.
func NewContext() Context {
	return Context{Start: time.Now().UTC()}
}

// Compute applies rules in order to previousState and returns the re-encoded
// state. Nothing is returned unless every rule succeeds.
func Compute(previousState string, rules []Rule, ctx Context) (string, error) {
	state, err := decodeState(previousState)
	if err != nil {
		return "", err
	}

	var ev *evaluator
	for i, r := range rules {
		var value string
		if r.IsExpression() {
			if ev == nil {
				ev = newEvaluator(ctx.Start)
			}
			value, err = ev.EvalString(strings.TrimPrefix(r.Update, Sigil))
			if err != nil {
				return "", fmt.Errorf("%w: rule %d (%s): %w", ErrExpression, i, r.From, err)
			}
		} else {
			value = r.Update
		}

		encoded, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("encoding rule %d value: %w", i, err)
		}
		state[r.From] = encoded
	}

	out, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encoding state: %w", err)
	}
	return string(out), nil
}

// Validate checks that the previous state parses and every expression
// evaluates, without producing a new state.
func Validate(previousState string, rules []Rule, ctx Context) error {
	_, err := Compute(previousState, rules, ctx)
	return err
}

// Lookup returns the raw JSON value stored under key in state, if present.
func Lookup(state, key string) (json.RawMessage, bool, error) {
	m, err := decodeState(state)
	if err != nil {
		return nil, false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

func decodeState(s string) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if m == nil {
		return nil, ErrInvalidState
	}
	return m, nil
}
