package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tjfontaine/sidebar-gate/internal/adapters/host/missive"
	"github.com/tjfontaine/sidebar-gate/internal/analysis"
	"github.com/tjfontaine/sidebar-gate/internal/api/openai"
	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one error. Checks lists the failing gate checks.
type ErrorDetail struct {
	Type    string               `json:"type"`
	Message string               `json:"message"`
	Checks  []domain.CheckResult `json:"checks,omitempty"`
}

// Error types not produced by the gate.
const (
	errorTypeInvalidRequest = "invalid_request"
	errorTypeUpstream       = "upstream_error"
	errorTypeTimeout        = "timeout"
	errorTypeServer         = "server_error"
)

// WriteError maps err to a status code and writes the error envelope. A rate
// limit denial also sets Retry-After in whole seconds.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	AddError(r.Context(), err)

	status, detail := classify(err)

	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		secs := int((rl.RetryAfter(time.Now()) + time.Second - 1) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	writeJSON(w, status, ErrorBody{Error: detail})
}

func classify(err error) (int, ErrorDetail) {
	var denied *domain.AccessDenied
	if errors.As(err, &denied) {
		return denied.HTTPStatusCode(), ErrorDetail{
			Type:    string(denied.Type()),
			Message: err.Error(),
			Checks:  denied.Failures,
		}
	}

	var (
		llmErr  *openai.APIError
		hostErr *missive.APIError
	)
	switch {
	case errors.Is(err, analysis.ErrUnknownPreset), errors.Is(err, analysis.ErrNoConversation):
		return http.StatusBadRequest, ErrorDetail{Type: errorTypeInvalidRequest, Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorDetail{Type: errorTypeTimeout, Message: err.Error()}
	case errors.As(err, &llmErr):
		status := http.StatusBadGateway
		if llmErr.Retryable() {
			status = http.StatusServiceUnavailable
		}
		return status, ErrorDetail{Type: errorTypeUpstream, Message: err.Error()}
	case errors.As(err, &hostErr), errors.Is(err, missive.ErrResponseTooLarge), errors.Is(err, openai.ErrResponseTooLarge):
		return http.StatusBadGateway, ErrorDetail{Type: errorTypeUpstream, Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorDetail{Type: errorTypeServer, Message: err.Error()}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
