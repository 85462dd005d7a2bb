package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/canmore-mixology/barkeep/internal/models"
)

// Pre-marshaled fallback responses to avoid runtime JSON encoding failures
var (
	fallbackErrorResponse []byte
)

// init validates that our fallback responses can be marshaled
func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so an encoding error can still change the status code.
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// conciergeError maps a concierge failure to its status and `{error}` body.
// Validation failures keep their field messages; everything else is an
// upstream failure reported with the generic message.
func conciergeError(err error, upstreamMessage string) (int, models.ErrorResponse) {
	if ve, ok := models.IsValidationError(err); ok {
		return http.StatusBadRequest, models.ErrorResponse{Error: firstMessage(ve), Fields: ve.Fields}
	}
	return http.StatusBadGateway, models.ErrorResponse{Error: upstreamMessage}
}

// firstMessage returns a single message for the `error` field, preferring
// the input field over others.
func firstMessage(ve *models.ValidationError) string {
	for _, key := range []string{"ingredients", "flavorPreferences", "prompt", "text", "mode"} {
		if msgs := ve.Fields[key]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	for _, msgs := range ve.Fields {
		if len(msgs) > 0 {
			return msgs[0]
		}
	}
	return "Invalid input."
}
