package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/canmore-mixology/barkeep/internal/concierge"
	"github.com/canmore-mixology/barkeep/internal/models"
)

// sessionResponse is a session's board snapshot with its ID.
type sessionResponse struct {
	SessionID string `json:"sessionId"`
	models.BoardSnapshot
}

func snapshotOf(sess *concierge.Session) sessionResponse {
	return sessionResponse{SessionID: sess.ID, BoardSnapshot: sess.Board.Snapshot()}
}

// lookupSession resolves the {id} path value, writing 404 when unknown.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*concierge.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		if !errors.Is(err, concierge.ErrSessionNotFound) {
			slog.Error("Server.lookupSession: session lookup failed", "error", err)
		}
		writeJSONResponse(w, http.StatusNotFound, models.ErrorResponse{Error: "Session not found."})
		return nil, false
	}
	return sess, true
}

// createSessionHandler handles POST /api/concierge/sessions.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeJSONResponse(w, http.StatusCreated, snapshotOf(sess))
}

// getSessionHandler handles GET /api/concierge/sessions/{id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, snapshotOf(sess))
}

// submitSessionHandler handles POST /api/concierge/sessions/{id}/suggestions.
// The response carries the suggestions with every image pending; clients
// poll the session for image results.
func (s *Server) submitSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var body models.SuggestionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		slog.Warn("Server.submitSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid JSON format"})
		return
	}
	gen, _, err := s.concierge.Run(r.Context(), sess.Board, body.Mode, body.Text)
	if err != nil {
		status, errBody := conciergeError(err, concierge.SuggestionsFailedMessage)
		writeJSONResponse(w, status, errBody)
		return
	}
	slog.Debug("Server.submitSessionHandler: result set started", "sessionID", sess.ID, "generation", gen)
	writeJSONResponse(w, http.StatusAccepted, snapshotOf(sess))
}

// clearSessionHandler handles DELETE /api/concierge/sessions/{id}/suggestions.
func (s *Server) clearSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	sess.Board.Clear()
	writeJSONResponse(w, http.StatusOK, snapshotOf(sess))
}
