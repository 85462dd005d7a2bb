package api

import (
	"log/slog"
	"net/http"

	"github.com/canmore-mixology/barkeep/internal/concierge"
	"github.com/canmore-mixology/barkeep/internal/models"
)

// IdempotencyKeyHeader lets a client mark retries of the same submission.
const IdempotencyKeyHeader = "Idempotency-Key"

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// contactHandler handles POST /api/contact.
func (s *Server) contactHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ContactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.contactHandler: failed to decode JSON", "error", err, "requestID", requestIDFrom(r.Context()))
		writeJSONResponse(w, http.StatusBadRequest, models.ContactResponse{Success: false, Message: "Invalid JSON format"})
		return
	}
	resp, status := s.contact.Submit(r.Context(), req, r.Header.Get(IdempotencyKeyHeader))
	writeJSONResponse(w, status, resp)
}

// ingredientsHandler handles POST /api/concierge/ingredients.
func (s *Server) ingredientsHandler(w http.ResponseWriter, r *http.Request) {
	var body models.IngredientsRequest
	if err := decodeJSON(w, r, &body); err != nil {
		slog.Warn("Server.ingredientsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid JSON format"})
		return
	}
	cocktails, ok := s.suggest(w, r, models.ModeIngredients, body.Ingredients)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string][]models.CocktailSuggestion{"cocktails": cocktails})
}

// flavorHandler handles POST /api/concierge/flavor.
func (s *Server) flavorHandler(w http.ResponseWriter, r *http.Request) {
	var body models.FlavorRequest
	if err := decodeJSON(w, r, &body); err != nil {
		slog.Warn("Server.flavorHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid JSON format"})
		return
	}
	cocktails, ok := s.suggest(w, r, models.ModeFlavor, body.FlavorPreferences)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string][]models.CocktailSuggestion{"cocktailSuggestions": cocktails})
}

// suggest runs one suggestion flow and writes the error response on failure.
func (s *Server) suggest(w http.ResponseWriter, r *http.Request, mode models.ConciergeMode, text string) ([]models.CocktailSuggestion, bool) {
	cocktails, err := s.concierge.Suggest(r.Context(), mode, text)
	if err != nil {
		// The concierge service has already logged upstream failures.
		status, body := conciergeError(err, concierge.SuggestionsFailedMessage)
		writeJSONResponse(w, status, body)
		return nil, false
	}
	slog.Info("Server.suggest: suggestions returned", "mode", mode, "count", len(cocktails))
	return cocktails, true
}

// imageHandler handles POST /api/concierge/image.
func (s *Server) imageHandler(w http.ResponseWriter, r *http.Request) {
	var body models.ImageRequest
	if err := decodeJSON(w, r, &body); err != nil {
		slog.Warn("Server.imageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid JSON format"})
		return
	}
	resp, err := s.concierge.GenerateImage(r.Context(), body.Prompt)
	if err != nil {
		status, errBody := conciergeError(err, concierge.ImageFailedMessage)
		writeJSONResponse(w, status, errBody)
		return
	}
	writeJSONResponse(w, http.StatusOK, resp)
}
