package flow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/canmore-mixology/barkeep/internal/genai"
	"github.com/canmore-mixology/barkeep/internal/models"
)

// mockClient implements genai.ClientInterface for tests.
type mockClient struct {
	mu        sync.Mutex
	reply     string
	err       error
	image     *genai.Image
	jsonCalls []genai.StructuredRequest
	imgCalls  []string
}

func (m *mockClient) GenerateJSON(ctx context.Context, req genai.StructuredRequest, out any) error {
	m.mu.Lock()
	m.jsonCalls = append(m.jsonCalls, req)
	m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	return json.Unmarshal([]byte(m.reply), out)
}

func (m *mockClient) GenerateImage(ctx context.Context, prompt string) (*genai.Image, error) {
	m.mu.Lock()
	m.imgCalls = append(m.imgCalls, prompt)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.image, nil
}

const twoCocktails = `{"cocktails":[
	{"name":"Moscow Mule","recipe":"2 oz vodka\n4 oz ginger beer\nSqueeze lime","imagePrompt":"copper mug mule"},
	{"name":"Gimlet","recipe":"2 oz gin\n0.75 oz lime","imagePrompt":"gimlet lime coupe"}
]}`

func TestSuggestionFlow_ReturnsItemsInOrder(t *testing.T) {
	client := &mockClient{reply: twoCocktails}
	f := NewSuggestionFlow(models.ModeIngredients, client, nil)

	got, err := f.Suggest(context.Background(), "  vodka, lime, ginger beer ")
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Moscow Mule" || got[1].Name != "Gimlet" {
		t.Fatalf("unexpected suggestions: %+v", got)
	}
	for _, c := range got {
		if c.Name == "" || c.Recipe == "" || c.ImagePrompt == "" {
			t.Errorf("suggestion missing a field: %+v", c)
		}
	}

	if len(client.jsonCalls) != 1 {
		t.Fatalf("expected one model call, got %d", len(client.jsonCalls))
	}
	call := client.jsonCalls[0]
	if call.SystemPrompt != "You are a world-class bartender." {
		t.Errorf("unexpected system prompt: %q", call.SystemPrompt)
	}
	if !strings.Contains(call.UserPrompt, "ingredients: vodka, lime, ginger beer.") {
		t.Errorf("user prompt does not embed trimmed input: %q", call.UserPrompt)
	}
	if !strings.Contains(call.UserPrompt, "Suggest 6 cocktails") {
		t.Errorf("user prompt missing count: %q", call.UserPrompt)
	}
	if call.Schema == nil || call.Name != "cocktail_suggestions" {
		t.Errorf("expected schema and name to be set, got %q", call.Name)
	}
}

func TestSuggestionFlow_FlavorPrompt(t *testing.T) {
	client := &mockClient{reply: twoCocktails}
	f := NewSuggestionFlow(models.ModeFlavor, client, nil)
	if _, err := f.Suggest(context.Background(), "smoky and bitter"); err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	call := client.jsonCalls[0]
	if call.SystemPrompt != "You are a master mixologist." {
		t.Errorf("unexpected system prompt: %q", call.SystemPrompt)
	}
	if !strings.Contains(call.UserPrompt, "flavor preferences: smoky and bitter.") {
		t.Errorf("unexpected user prompt: %q", call.UserPrompt)
	}
}

func TestSuggestionFlow_ShortInputRejectedBeforeNetwork(t *testing.T) {
	client := &mockClient{reply: twoCocktails}
	f := NewSuggestionFlow(models.ModeIngredients, client, nil)

	_, err := f.Suggest(context.Background(), " ab ")
	ve, ok := models.IsValidationError(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := ve.Fields["ingredients"]; !ok {
		t.Errorf("expected ingredients field error, got %v", ve.Fields)
	}
	if len(client.jsonCalls) != 0 {
		t.Errorf("expected no model call, got %d", len(client.jsonCalls))
	}
}

func TestSuggestionFlow_MalformedItem(t *testing.T) {
	client := &mockClient{reply: `{"cocktails":[{"name":"Negroni","recipe":"1 oz gin","imagePrompt":"  "}]}`}
	f := NewSuggestionFlow(models.ModeIngredients, client, nil)

	_, err := f.Suggest(context.Background(), "gin, campari")
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestSuggestionFlow_EmptyListAccepted(t *testing.T) {
	client := &mockClient{reply: `{"cocktails":[]}`}
	f := NewSuggestionFlow(models.ModeFlavor, client, nil)

	got, err := f.Suggest(context.Background(), "sweet and sour")
	if err != nil {
		t.Fatalf("Suggest failed: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil list, got %#v", got)
	}
}

func TestSuggestionFlow_UpstreamError(t *testing.T) {
	client := &mockClient{err: genai.ErrEmptyResponse}
	f := NewSuggestionFlow(models.ModeIngredients, client, nil)

	_, err := f.Suggest(context.Background(), "rum, mint")
	if !errors.Is(err, genai.ErrEmptyResponse) {
		t.Fatalf("expected wrapped ErrEmptyResponse, got %v", err)
	}
	if _, ok := models.IsValidationError(err); ok {
		t.Error("upstream errors must not look like validation errors")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(models.ModeFlavor); ok {
		t.Fatal("expected empty registry")
	}
	_, err := r.Suggest(context.Background(), models.ModeFlavor, "fruity")
	if !errors.Is(err, ErrNoGenerator) {
		t.Fatalf("expected ErrNoGenerator, got %v", err)
	}
	_, err = r.Suggest(context.Background(), "vibes", "fruity")
	if ve, ok := models.IsValidationError(err); !ok || len(ve.Fields["mode"]) == 0 {
		t.Fatalf("expected mode validation error, got %v", err)
	}

	client := &mockClient{reply: twoCocktails}
	r = NewDefaultRegistry(client, nil)
	for _, mode := range []models.ConciergeMode{models.ModeIngredients, models.ModeFlavor} {
		got, err := r.Suggest(context.Background(), mode, "lime, mint, rum")
		if err != nil {
			t.Fatalf("%s: Suggest failed: %v", mode, err)
		}
		if len(got) != 2 {
			t.Errorf("%s: expected 2 suggestions, got %d", mode, len(got))
		}
	}
}

func TestImageFlow_Generate(t *testing.T) {
	client := &mockClient{image: &genai.Image{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}}
	f := NewImageFlow(client, nil)

	img, err := f.Generate(context.Background(), "  classic margarita lime ")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.HasPrefix(img.DataURI(), "data:image/png;base64,") {
		t.Errorf("unexpected data URI: %s", img.DataURI())
	}
	if len(client.imgCalls) != 1 {
		t.Fatalf("expected one image call, got %d", len(client.imgCalls))
	}
	want := "Generate a vibrant, appetizing, photorealistic image of a cocktail: classic margarita lime. The cocktail should be the main focus, well-lit, and appealing, suitable for a menu."
	if client.imgCalls[0] != want {
		t.Errorf("unexpected image prompt:\n got %q\nwant %q", client.imgCalls[0], want)
	}
}

func TestImageFlow_NoDedup(t *testing.T) {
	client := &mockClient{image: &genai.Image{Data: []byte("x"), MIMEType: "image/png"}}
	f := NewImageFlow(client, nil)
	for i := 0; i < 2; i++ {
		if _, err := f.Generate(context.Background(), "rum punch fruit"); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
	}
	if len(client.imgCalls) != 2 {
		t.Errorf("expected two generations, got %d", len(client.imgCalls))
	}
}

func TestImageFlow_Validation(t *testing.T) {
	client := &mockClient{}
	f := NewImageFlow(client, nil)
	for _, phrase := range []string{"   ", strings.Repeat("x", 201)} {
		_, err := f.Generate(context.Background(), phrase)
		ve, ok := models.IsValidationError(err)
		if !ok {
			t.Fatalf("expected ValidationError for %q, got %v", phrase, err)
		}
		if _, ok := ve.Fields["prompt"]; !ok {
			t.Errorf("expected prompt field error, got %v", ve.Fields)
		}
	}
	if len(client.imgCalls) != 0 {
		t.Errorf("expected no image calls, got %d", len(client.imgCalls))
	}
}

func TestLoadPrompts_Override(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	content := "flavor:\n  system: You are a tiki bar legend.\n  user: \"Tiki drinks tasting of {{.Input}}\"\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	p, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts failed: %v", err)
	}
	if p.Flavor.System != "You are a tiki bar legend." {
		t.Errorf("system not overridden: %q", p.Flavor.System)
	}
	if p.Flavor.Name != "cocktail_suggestions" {
		t.Errorf("expected default name to survive, got %q", p.Flavor.Name)
	}
	out, err := p.Flavor.Render("coconut")
	if err != nil || out != "Tiki drinks tasting of coconut" {
		t.Errorf("unexpected render %q, err %v", out, err)
	}
	if p.Ingredients.System != "You are a world-class bartender." {
		t.Errorf("ingredients prompt should keep defaults, got %q", p.Ingredients.System)
	}
}

func TestLoadPrompts_Errors(t *testing.T) {
	if _, err := LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("image:\n  user: \"{{.Input\"\n"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := LoadPrompts(path); err == nil {
		t.Error("expected template parse error")
	}

	p, err := LoadPrompts("")
	if err != nil || p.Image.User == "" {
		t.Errorf("expected defaults for empty path, got %v", err)
	}
}
