package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tjfontaine/sidebar-gate/internal/analysis"
	"github.com/tjfontaine/sidebar-gate/internal/core/domain"
	"github.com/tjfontaine/sidebar-gate/internal/core/ports"
)

const maxBodyBytes = 1 << 20

// AccessRequest asks the gate for a decision. A missing selection means the
// sidebar has just started and nothing is selected yet.
type AccessRequest struct {
	Selection *domain.SelectionContext `json:"selection,omitempty"`
}

// AccessResponse is returned when access is allowed.
type AccessResponse struct {
	Allowed bool `json:"allowed"`
}

// SelectionEvent carries the identifiers of newly selected conversations.
type SelectionEvent struct {
	ConversationIDs []string `json:"conversation_ids"`
}

// AuditResponse lists the retained audit entries, oldest first.
type AuditResponse struct {
	Entries  []domain.AuditEntry `json:"entries"`
	Capacity int                 `json:"capacity"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	var req AccessRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{Type: errorTypeInvalidRequest, Message: err.Error()}})
		return
	}

	if err := s.deps.Gate.ValidateAccess(r.Context(), req.Selection); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccessResponse{Allowed: true})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{Type: errorTypeInvalidRequest, Message: err.Error()}})
		return
	}
	AddLogField(r.Context(), "preset", req.Preset)

	res, err := s.deps.Analysis.Analyze(r.Context(), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Gate.Status())
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	log := s.deps.Gate.AuditLog()
	writeJSON(w, http.StatusOK, AuditResponse{Entries: log.Entries(), Capacity: log.Capacity()})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"presets": analysis.Presets()})
}

// handleSelectionEvent forwards a selection change from the sidebar to every
// subscriber, including a pending startup tenant verification.
func (s *Server) handleSelectionEvent(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeJSON(w, http.StatusNotFound, ErrorBody{Error: ErrorDetail{Type: errorTypeInvalidRequest, Message: "selection events are not enabled"}})
		return
	}

	var ev SelectionEvent
	if err := decodeBody(r, &ev); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{Type: errorTypeInvalidRequest, Message: err.Error()}})
		return
	}
	if len(ev.ConversationIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorDetail{Type: errorTypeInvalidRequest, Message: "conversation_ids required"}})
		return
	}

	delivered := s.deps.Events.Publish(ports.EventSelectionChanged, ev.ConversationIDs)
	writeJSON(w, http.StatusAccepted, map[string]int{"delivered": delivered})
}

// decodeBody decodes an optional JSON body. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
