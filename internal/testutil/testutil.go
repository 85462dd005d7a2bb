// Package testutil provides common test utilities and helpers for barkeep tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/store"
)

// TB is the subset of testing.TB used by the assertion helpers, so the
// helpers themselves can be tested with a recording fake.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// NewSQLiteStore opens an SQLite store in a per-test temp directory and
// closes it when the test ends.
func NewSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "barkeep.db")
	st, err := store.NewSQLiteStore(store.WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an APIResponse envelope and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != string(expectedStatus) {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertReceiptCount validates the number of receipts in the store.
func AssertReceiptCount(t TB, st store.Store, expected int, context string) {
	t.Helper()
	receipts, err := st.GetReceipts()
	if err != nil {
		t.Fatalf("%s: failed to get receipts: %v", context, err)
	}
	if len(receipts) != expected {
		t.Errorf("%s: expected %d receipts, got %d", context, expected, len(receipts))
	}
}

// SampleSuggestions returns n well-formed cocktail suggestions.
func SampleSuggestions(n int) []models.CocktailSuggestion {
	names := []string{"Negroni", "Daiquiri", "Paloma", "Old Fashioned", "Last Word", "Mai Tai", "Sazerac", "Gimlet"}
	out := make([]models.CocktailSuggestion, n)
	for i := range out {
		name := names[i%len(names)]
		out[i] = models.CocktailSuggestion{
			Name:        name,
			Recipe:      "Ingredients:\n- 2 oz spirit\n\nInstructions:\n1. Stir and strain.",
			ImagePrompt: name + " on a bar",
		}
	}
	return out
}

// AssertSuggestionShape fails the test for any suggestion with an empty field.
func AssertSuggestionShape(t TB, suggestions []models.CocktailSuggestion) {
	t.Helper()
	for i, s := range suggestions {
		if s.Name == "" || s.Recipe == "" || s.ImagePrompt == "" {
			t.Errorf("suggestion %d has an empty field: %+v", i, s)
		}
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
