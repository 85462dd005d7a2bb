package testutil

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/canmore-mixology/barkeep/internal/models"
)

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{name: "matching status codes", expected: 200, actual: 200},
		{name: "different status codes", expected: 200, actual: 404, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")
			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v (%s)", tt.shouldFail, mockT.failed, mockT.errorMsg)
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name       string
		jsonBody   string
		shouldFail bool
	}{
		{name: "valid JSON with matching status", jsonBody: `{"status":"ok","result":"test"}`},
		{name: "valid JSON with different status", jsonBody: `{"status":"error","message":"test"}`, shouldFail: true},
		{name: "invalid JSON", jsonBody: `{"status":}`, shouldFail: true},
		{name: "missing status field", jsonBody: `{"result":"test"}`, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)

			var response map[string]interface{}
			func() {
				// Fatalf panics in the fake.
				defer func() { recover() }()
				response = AssertJSONResponse(mockT, rr, models.APIStatusOK)
			}()

			if tt.shouldFail != mockT.failed {
				t.Errorf("expected failed=%v, got %v (%s)", tt.shouldFail, mockT.failed, mockT.errorMsg)
			}
			if !tt.shouldFail && response == nil {
				t.Error("expected response map to be returned")
			}
		})
	}
}

func TestCreateHTTPRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		body   interface{}
	}{
		{name: "GET request with no body", method: "GET", url: "/health"},
		{name: "POST request with map body", method: "POST", url: "/api/concierge/image", body: map[string]string{"prompt": "negroni"}},
		{name: "POST request with struct body", method: "POST", url: "/api/contact", body: models.ContactRequest{Name: "Jamie", Email: "jamie@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := CreateHTTPRequest(t, tt.method, tt.url, tt.body)
			if req.Method != tt.method {
				t.Errorf("expected method %s, got %s", tt.method, req.Method)
			}
			if req.URL.Path != tt.url {
				t.Errorf("expected URL %s, got %s", tt.url, req.URL.Path)
			}
			if req.Header.Get("Content-Type") != "application/json" {
				t.Error("expected JSON content type")
			}
		})
	}
}

func TestNewSQLiteStoreAndReceiptCount(t *testing.T) {
	st := NewSQLiteStore(t)

	mockT := &mockTestingT{}
	AssertReceiptCount(mockT, st, 0, "empty store")
	if mockT.failed {
		t.Errorf("expected pass for empty store, got: %s", mockT.errorMsg)
	}

	if err := st.AddReceipt(models.Receipt{To: "operator", Channel: models.ChannelLog, Status: models.MessageStatusSent, Time: 1}); err != nil {
		t.Fatalf("failed to add receipt: %v", err)
	}

	mockT = &mockTestingT{}
	AssertReceiptCount(mockT, st, 1, "one receipt")
	if mockT.failed {
		t.Errorf("expected pass for one receipt, got: %s", mockT.errorMsg)
	}

	mockT = &mockTestingT{}
	AssertReceiptCount(mockT, st, 2, "wrong count")
	if !mockT.failed {
		t.Error("expected failure for wrong count")
	}
}

func TestSampleSuggestions(t *testing.T) {
	got := SampleSuggestions(10)
	if len(got) != 10 {
		t.Fatalf("expected 10 suggestions, got %d", len(got))
	}
	AssertSuggestionShape(t, got)

	mockT := &mockTestingT{}
	AssertSuggestionShape(mockT, []models.CocktailSuggestion{{Name: "Negroni"}})
	if !mockT.failed {
		t.Error("expected failure for suggestion without recipe")
	}
}

func TestMustUnmarshalJSON(t *testing.T) {
	var target map[string]interface{}
	MustUnmarshalJSON(t, MustMarshalJSON(t, map[string]interface{}{"key": "value", "number": 123}), &target)

	if target["key"] != "value" {
		t.Errorf("expected key to be 'value', got %v", target["key"])
	}
	if target["number"].(float64) != 123 {
		t.Errorf("expected number to be 123, got %v", target["number"])
	}
}

// mockTestingT records failures reported by the helpers under test.
type mockTestingT struct {
	failed   bool
	errorMsg string
}

func (m *mockTestingT) Helper() {}

func (m *mockTestingT) Errorf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Error(args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprint(args...)
}

func (m *mockTestingT) Fatalf(format string, args ...interface{}) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
	panic("test failed")
}
