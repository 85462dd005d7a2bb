package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func validContact() ContactRequest {
	return ContactRequest{
		Name:    "Alex Doe",
		Email:   "alex@example.com",
		Message: "We would love a cocktail bar for our wedding.",
	}
}

func TestContactRequestValidate_OK(t *testing.T) {
	req := validContact()
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestContactRequestValidate_InvalidEmailOnlyFlagsEmail(t *testing.T) {
	req := validContact()
	req.Email = "not-an-email"
	err := req.Validate()
	ve, ok := IsValidationError(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Fields) != 1 {
		t.Fatalf("expected exactly one flagged field, got %v", ve.Fields)
	}
	msgs := ve.Fields["email"]
	if len(msgs) != 1 || msgs[0] != "Please enter a valid email address." {
		t.Errorf("unexpected email messages: %v", msgs)
	}
}

func TestContactRequestValidate_ShortFields(t *testing.T) {
	req := ContactRequest{Name: "A", Email: "a@b.co", Message: "too short"}
	ve, ok := IsValidationError(req.Validate())
	if !ok {
		t.Fatal("expected ValidationError")
	}
	if got := ve.Fields["name"]; len(got) != 1 || got[0] != "Name must be at least 2 characters." {
		t.Errorf("unexpected name messages: %v", got)
	}
	if got := ve.Fields["message"]; len(got) != 1 || got[0] != "Message must be at least 10 characters." {
		t.Errorf("unexpected message messages: %v", got)
	}
	if _, flagged := ve.Fields["email"]; flagged {
		t.Error("email should not be flagged")
	}
}

func TestContactRequestNormalize(t *testing.T) {
	req := ContactRequest{Name: "  Al  ", Email: " al@example.com\n", Message: "  hello there friends  "}
	req.Normalize()
	if req.Name != "Al" || req.Email != "al@example.com" || req.Message != "hello there friends" {
		t.Errorf("fields not trimmed: %+v", req)
	}
}

func TestContactRequestParsedEventDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2026-12-31", true},
		{"2026-12-31T18:00:00Z", true},
		{"next summer", false},
		{"", false},
	}
	for _, c := range cases {
		req := ContactRequest{EventDate: c.in}
		if _, ok := req.ParsedEventDate(); ok != c.ok {
			t.Errorf("ParsedEventDate(%q) ok=%v, want %v", c.in, ok, c.ok)
		}
	}
}

func TestSuggestionRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     SuggestionRequest
		wantKey string
	}{
		{"ingredients too short", SuggestionRequest{Mode: ModeIngredients, Text: " ab "}, "ingredients"},
		{"flavor too short", SuggestionRequest{Mode: ModeFlavor, Text: "x"}, "flavorPreferences"},
		{"unknown mode", SuggestionRequest{Mode: "shaken", Text: "vodka"}, "mode"},
		{"ingredients too long", SuggestionRequest{Mode: ModeIngredients, Text: strings.Repeat("a", 501)}, "ingredients"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve, ok := IsValidationError(tt.req.Validate())
			if !ok {
				t.Fatal("expected ValidationError")
			}
			if _, ok := ve.Fields[tt.wantKey]; !ok || len(ve.Fields) != 1 {
				t.Errorf("expected only %q flagged, got %v", tt.wantKey, ve.Fields)
			}
		})
	}

	ok := SuggestionRequest{Mode: ModeIngredients, Text: "  vodka, lime juice, ginger beer "}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if ok.Text != "vodka, lime juice, ginger beer" {
		t.Errorf("expected trimmed text, got %q", ok.Text)
	}
}

func TestIsValidMode(t *testing.T) {
	if !IsValidMode(ModeIngredients) || !IsValidMode(ModeFlavor) {
		t.Error("expected built-in modes to be valid")
	}
	if IsValidMode("stirred") {
		t.Error("expected unknown mode to be invalid")
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	resp := SuccessWithMessage("done", map[string]int{"n": 1})
	if resp.Status != string(APIStatusOK) || resp.Message != "done" || resp.Result == nil {
		t.Errorf("unexpected success response: %+v", resp)
	}
	errResp := Error("boom")
	if errResp.Status != string(APIStatusError) || errResp.Message != "boom" {
		t.Errorf("unexpected error response: %+v", errResp)
	}
	data, err := json.Marshal(Accepted(nil))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"status":"accepted"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestImageResultSettled(t *testing.T) {
	if (ImageResult{Status: ImageStatusPending}).Settled() {
		t.Error("pending should not be settled")
	}
	if !(ImageResult{Status: ImageStatusFailed}).Settled() || !(ImageResult{Status: ImageStatusReady}).Settled() {
		t.Error("ready and failed should be settled")
	}
}
