package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kalambet/jobrelay/internal/actors"
	"github.com/kalambet/jobrelay/internal/job"
)

// Error types carried in the "type" field of error bodies.
const (
	typeInvalidRequest = "invalid_request_error"
	typeNotFound       = "not_found_error"
	typeTimeout        = "timeout_error"
	typeUpstream       = "api_error"
	typeInternal       = "internal_error"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// classify maps a run error to an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, actors.ErrUnknownActor):
		return http.StatusNotFound, typeNotFound
	case errors.Is(err, actors.ErrInvalidConfig),
		errors.Is(err, job.ErrValidation),
		errors.Is(err, ErrMissingToken):
		return http.StatusBadRequest, typeInvalidRequest
	case errors.Is(err, job.ErrTimedOut):
		return http.StatusGatewayTimeout, typeTimeout
	}
	return http.StatusBadGateway, typeUpstream
}

func runError(w http.ResponseWriter, err error) {
	code, errType := classify(err)
	httpError(w, code, errType, "%v", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
