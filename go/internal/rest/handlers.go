// Package rest exposes the admin tooling surface: the events document and
// the match-result history.
package rest

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/matside/scoreboard-server/go/internal/archive"
)

// Handlers serves the admin endpoints backed by the persistence coordinator.
type Handlers struct {
	coordinator *archive.Coordinator
}

// NewHandlers builds the admin surface.
func NewHandlers(coordinator *archive.Coordinator) *Handlers {
	return &Handlers{coordinator: coordinator}
}

// RegisterRoutes registers the admin endpoints on the mux.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/events.json", h.handleGetEvents)
	mux.HandleFunc("/save-events", h.handleSaveEvents)
	mux.HandleFunc("/match-results", h.handleGetMatchResults)
	mux.HandleFunc("/save-match-result", h.handleSaveMatchResult)
}

func (h *Handlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.coordinator.Events())
}

// handleSaveEvents replaces the events document wholesale and reports the
// durable-write outcome. The live in-memory copy is updated either way.
func (h *Handlers) handleSaveEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.coordinator.ReplaceEvents(r.Context(), body.Events); err != nil {
		log.Error().Err(err).Msg("events save failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "store write failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handlers) handleGetMatchResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.coordinator.MatchResults())
}

// handleSaveMatchResult appends one result entry and waits for the durable
// write so admin tooling sees real failures.
func (h *Handlers) handleSaveMatchResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var entry json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.coordinator.SaveMatchResult(r.Context(), entry); err != nil {
		log.Error().Err(err).Msg("match result save failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "store write failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}
