package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/runlens/runlens/graph"
	"github.com/runlens/runlens/graph/history"
)

type startSessionRequest struct {
	// SessionID is optional; empty gets a generated id.
	SessionID string          `json:"session_id,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
}

type rerunRequest struct {
	CheckpointID string          `json:"checkpoint_id"`
	Input        json.RawMessage `json:"input,omitempty"`
	Step         string          `json:"step,omitempty"`
}

type resumeRequest struct {
	Approval json.RawMessage `json:"approval,omitempty"`
}

// handleStartSession creates a session engine and starts a fresh run.
// Starting an existing session id resets its store first: starting over is
// the one path that clears history, unlike reruns.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.opts.Orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "no orchestrator configured")
		return
	}

	eng := s.engineFor(req.SessionID, true)
	if req.SessionID != "" {
		if err := eng.Reset(); err != nil {
			writeError(w, http.StatusConflict, "session is being written")
			return
		}
	}

	if err := eng.Start(r.Context(), req.Input); err != nil {
		s.logger.Error("start session failed",
			zap.String("session_id", eng.SessionID()), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": eng.SessionID()})
}

// handleGraph serves the session's current snapshot.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	eng := s.Engine(mux.Vars(r)["id"])
	if eng == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, eng.Snapshot())
}

// handleLayout serves a render-ready placement of the current snapshot.
func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	eng := s.Engine(mux.Vars(r)["id"])
	if eng == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, graph.Layout(eng.Snapshot()))
}

// handlePath serves the ancestor uid set of a focused occurrence. The uid
// arrives as a query parameter because promoted uids contain slashes.
func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	eng := s.Engine(mux.Vars(r)["id"])
	if eng == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	uid := r.URL.Query().Get("uid")
	if uid == "" {
		writeError(w, http.StatusBadRequest, "uid is required")
		return
	}

	visited := eng.TracePath(uid)
	uids := make([]string, 0, len(visited))
	for uid := range visited {
		uids = append(uids, uid)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"uids": uids})
}

// handleRerun issues a time-travel rerun from a historical checkpoint.
func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	eng := s.Engine(mux.Vars(r)["id"])
	if eng == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req rerunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CheckpointID == "" {
		writeError(w, http.StatusBadRequest, "checkpoint_id is required")
		return
	}

	switch err := eng.RequestRerun(r.Context(), req.CheckpointID, req.Input, req.Step); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "rerun issued"})
	case errors.Is(err, graph.ErrUnknownCheckpoint):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, graph.ErrNoOrchestrator):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// handleResume answers a pending interrupt.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	eng := s.Engine(mux.Vars(r)["id"])
	if eng == nil {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch err := eng.Resume(r.Context(), req.Approval); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "resumed"})
	case errors.Is(err, graph.ErrNoInterrupt):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, graph.ErrNoOrchestrator):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// handleRehydrate rebuilds a reopened session from the history source and
// serves the resulting snapshot.
func (s *Server) handleRehydrate(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		writeError(w, http.StatusServiceUnavailable, "no history source configured")
		return
	}

	sessionID := mux.Vars(r)["id"]
	eng := s.engineFor(sessionID, true)

	switch err := eng.Rehydrate(r.Context(), s.opts.History); {
	case err == nil:
		writeJSON(w, http.StatusOK, eng.Snapshot())
	case errors.Is(err, history.ErrNotFound):
		writeError(w, http.StatusNotFound, "no history for session")
	case errors.Is(err, graph.ErrWriterActive):
		writeError(w, http.StatusConflict, "session is being written")
	default:
		s.logger.Error("rehydrate failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// handleDeleteSession drops a session engine entirely.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	s.mu.Lock()
	_, ok := s.engines[sessionID]
	delete(s.engines, sessionID)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
