package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// debugLogEntry is the JSON document written for each provider call in debug mode.
type debugLogEntry struct {
	Timestamp string `json:"timestamp"`
	Method    string `json:"method"`
	Model     string `json:"model"`
	Params    any    `json:"params"`
	Response  any    `json:"response"`
	Error     string `json:"error,omitempty"`
}

// logDebugCall writes one debug file under <stateDir>/debug. Failures are
// logged and otherwise ignored.
func (c *Client) logDebugCall(method, model string, params, response any, callErr error) {
	if !c.debugMode || c.stateDir == "" {
		return
	}

	debugDir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.Warn("Client.logDebugCall: failed to create debug dir", "dir", debugDir, "error", err)
		return
	}

	now := time.Now().UTC()
	entry := debugLogEntry{
		Timestamp: now.Format(time.RFC3339Nano),
		Method:    method,
		Model:     model,
		Params:    params,
		Response:  response,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		slog.Warn("Client.logDebugCall: failed to marshal debug entry", "method", method, "error", err)
		return
	}

	name := fmt.Sprintf("%s_%s_%s.json", now.Format("20060102T150405.000000000"), method, uuid.NewString()[:8])
	path := filepath.Join(debugDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("Client.logDebugCall: failed to write debug file", "path", path, "error", err)
		return
	}
	slog.Debug("Client.logDebugCall: wrote debug file", "path", path)
}
