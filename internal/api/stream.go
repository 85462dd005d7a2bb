package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/canmore-mixology/barkeep/internal/concierge"
	"github.com/canmore-mixology/barkeep/internal/models"
)

// Server-sent event names on the concierge stream.
const (
	EventSuggestions = "suggestions"
	EventImage       = "image"
	EventDone        = "done"
	EventError       = "error"
)

type suggestionsEvent struct {
	Generation uint64        `json:"generation"`
	Slots      []models.Slot `json:"slots"`
}

type imageEvent struct {
	Index int                `json:"index"`
	Image models.ImageResult `json:"image"`
}

type doneEvent struct {
	Generation uint64 `json:"generation"`
	Ready      int    `json:"ready"`
	Failed     int    `json:"failed"`
}

// sseWriter writes text/event-stream frames.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (s *sseWriter) send(event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// streamHandler handles POST /api/concierge/stream. It sends the
// suggestions once they arrive, then one image event per slot as each
// settles, then done. A client that disconnects stops the stream; the
// image requests already started still complete in the background.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("Server.streamHandler: response writer does not support flushing")
		writeJSONResponse(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Streaming unsupported."})
		return
	}
	var body models.SuggestionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		slog.Warn("Server.streamHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid JSON format"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	sse := &sseWriter{w: w, f: flusher}

	board := concierge.NewBoard()
	updates, unsubscribe := board.Subscribe()
	defer unsubscribe()

	gen, done, err := s.concierge.Run(r.Context(), board, body.Mode, body.Text)
	if err != nil {
		_, errBody := conciergeError(err, concierge.SuggestionsFailedMessage)
		if sendErr := sse.send(EventError, errBody); sendErr != nil {
			slog.Debug("Server.streamHandler: failed to send error event", "error", sendErr)
		}
		return
	}

	snap := board.Snapshot()
	if err := sse.send(EventSuggestions, suggestionsEvent{Generation: uint64(gen), Slots: snap.Slots}); err != nil {
		slog.Debug("Server.streamHandler: client gone", "error", err)
		return
	}

	sent := make(map[int]bool, len(snap.Slots))
	sendImage := func(i int, img models.ImageResult) bool {
		if sent[i] {
			return true
		}
		sent[i] = true
		if err := sse.send(EventImage, imageEvent{Index: i, Image: img}); err != nil {
			slog.Debug("Server.streamHandler: client gone", "error", err)
			return false
		}
		return true
	}

wait:
	for len(sent) < len(snap.Slots) {
		select {
		case <-r.Context().Done():
			slog.Debug("Server.streamHandler: client disconnected", "generation", gen, "sent", len(sent))
			return
		case u, ok := <-updates:
			if !ok {
				break wait
			}
			if u.Kind == concierge.UpdateImage && u.Generation == gen {
				if !sendImage(u.Index, u.Image) {
					return
				}
			}
		case <-done:
			break wait
		}
	}

	// Updates dropped from a full buffer are recovered from the final state.
	final := board.Snapshot()
	var ready, failed int
	for _, slot := range final.Slots {
		if slot.Image.Settled() && !sendImage(slot.Index, slot.Image) {
			return
		}
		switch slot.Image.Status {
		case models.ImageStatusReady:
			ready++
		case models.ImageStatusFailed:
			failed++
		}
	}
	if err := sse.send(EventDone, doneEvent{Generation: uint64(gen), Ready: ready, Failed: failed}); err != nil {
		slog.Debug("Server.streamHandler: failed to send done event", "error", err)
	}
}
