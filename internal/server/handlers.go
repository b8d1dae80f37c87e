package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/casebridge/internal/domain"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type replayRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type replayResponse struct {
	Replayed int `json:"replayed"`
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.From.IsZero() || req.To.IsZero() || req.To.Before(req.From) {
		writeError(w, http.StatusBadRequest, "from and to must form a valid time range")
		return
	}

	count, err := s.replayer.Replay(r.Context(), req.From, req.To)
	if err != nil {
		log.Error().Err(err).Msg("replay failed")
		writeError(w, http.StatusInternalServerError, "replay failed")
		return
	}

	writeJSON(w, http.StatusOK, replayResponse{Replayed: count})
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	letters, err := s.deadLetters.List(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("dead letter list failed")
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if letters == nil {
		letters = []*domain.DeadLetter{}
	}

	writeJSON(w, http.StatusOK, letters)
}

func (s *Server) handleEscalations(w http.ResponseWriter, r *http.Request) {
	status := domain.EscalationStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.EscalationStatusOpen
	}

	before := time.Now()
	if v := r.URL.Query().Get("before"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "before must be RFC3339")
			return
		}
		before = parsed
	}

	escalations, err := s.escalations.ListDueBefore(r.Context(), status, before, queryInt(r, "limit", 100))
	if err != nil {
		log.Error().Err(err).Msg("escalation list failed")
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if escalations == nil {
		escalations = []*domain.Escalation{}
	}

	writeJSON(w, http.StatusOK, escalations)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"status": status, "detail": detail})
}
