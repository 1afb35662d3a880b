// Package actors holds the closed set of actor presets. Each preset is a
// typed configuration keyed by its actor_type, with its own defaults,
// validation and request-body serialization.
package actors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

var (
	// ErrUnknownActor is returned for an actor_type outside the preset set.
	ErrUnknownActor = errors.New("unknown actor type")
	// ErrInvalidConfig is returned when a preset config fails to decode or validate.
	ErrInvalidConfig = errors.New("invalid actor config")
)

// Preset is a decoded, typed actor configuration.
type Preset interface {
	// ActorType is the discriminant used in routes and requests.
	ActorType() string
	// ActorName is the remote actor identifier.
	ActorName() string
	// Validate checks the configuration.
	Validate() error
	// Body returns the actor input sent to the remote platform.
	Body() (map[string]any, error)

	preset()
}

// Metadata describes a preset for discovery endpoints.
type Metadata struct {
	ActorType   string             `json:"actor_type"`
	ActorName   string             `json:"actor_name"`
	Description string             `json:"description"`
	Schema      *jsonschema.Schema `json:"schema"`
}

type entry struct {
	actorType   string
	actorName   string
	title       string
	description string
	newConfig   func() Preset
}

var registry = map[string]entry{}

func register(e entry) {
	if _, dup := registry[e.actorType]; dup {
		panic("actors: duplicate actor type " + e.actorType)
	}
	registry[e.actorType] = e
}

// Parse decodes raw into the preset for actorType, applies its defaults and
// validates it.
func Parse(actorType string, raw json.RawMessage) (Preset, error) {
	e, ok := registry[actorType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownActor, actorType)
	}
	p := e.newConfig()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: %s config is required", ErrInvalidConfig, actorType)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, actorType, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, actorType, err)
	}
	return p, nil
}

// Known reports whether actorType names a preset.
func Known(actorType string) bool {
	_, ok := registry[actorType]
	return ok
}

// List returns metadata for every preset, ordered by actor type.
func List() []Metadata {
	out := make([]Metadata, 0, len(registry))
	for _, e := range registry {
		out = append(out, e.metadata())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActorType < out[j].ActorType })
	return out
}

// Lookup returns metadata for one preset.
func Lookup(actorType string) (Metadata, bool) {
	e, ok := registry[actorType]
	if !ok {
		return Metadata{}, false
	}
	return e.metadata(), true
}

func (e entry) metadata() Metadata {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(e.newConfig())
	s.Title = e.title
	s.Description = e.description
	return Metadata{
		ActorType:   e.actorType,
		ActorName:   e.actorName,
		Description: e.description,
		Schema:      s,
	}
}

// structBody serializes a preset whose JSON form is its actor input.
func structBody(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding actor input: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decoding actor input: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
