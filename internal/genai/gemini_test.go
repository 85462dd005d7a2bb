package genai

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type mockModelsService struct {
	resp   *genai.GenerateContentResponse
	err    error
	model  string
	config *genai.GenerateContentConfig
}

func (m *mockModelsService) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.model = model
	m.config = config
	return m.resp, m.err
}

func geminiReply(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func newGeminiTestClient(models modelsService) *Client {
	return &Client{
		provider:   ProviderGemini,
		model:      DefaultGeminiModel,
		imageModel: DefaultGeminiImageModel,
		backend: &geminiBackend{
			models:      models,
			model:       DefaultGeminiModel,
			imageModel:  DefaultGeminiImageModel,
			temperature: 0.8,
		},
	}
}

func TestGemini_GenerateJSON(t *testing.T) {
	models := &mockModelsService{resp: geminiReply(&genai.Part{Text: `{"items":[{"name":"Paloma"}]}`})}
	client := newGeminiTestClient(models)

	var out testPayload
	if err := client.GenerateJSON(context.Background(), testRequest(), &out); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Name != "Paloma" {
		t.Errorf("unexpected payload %+v", out)
	}
	if models.config.ResponseMIMEType != "application/json" {
		t.Errorf("expected JSON mime type, got %q", models.config.ResponseMIMEType)
	}
	if models.config.ResponseSchema == nil || models.config.ResponseSchema.Type != genai.TypeObject {
		t.Fatalf("expected object response schema, got %+v", models.config.ResponseSchema)
	}
	if models.config.SystemInstruction == nil {
		t.Error("expected system instruction")
	}
}

func TestGemini_GenerateImage(t *testing.T) {
	models := &mockModelsService{resp: geminiReply(
		&genai.Part{Text: "Here is your cocktail."},
		&genai.Part{InlineData: &genai.Blob{Data: []byte("jpeg"), MIMEType: "image/jpeg"}},
	)}
	client := newGeminiTestClient(models)

	img, err := client.GenerateImage(context.Background(), "paloma grapefruit")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(img.Data) != "jpeg" || img.MIMEType != "image/jpeg" {
		t.Errorf("unexpected image %+v", img)
	}
	if models.model != DefaultGeminiImageModel {
		t.Errorf("expected image model, got %q", models.model)
	}
	if len(models.config.ResponseModalities) != 2 {
		t.Errorf("expected TEXT and IMAGE modalities, got %v", models.config.ResponseModalities)
	}
	if len(models.config.SafetySettings) != 4 {
		t.Fatalf("expected 4 safety settings, got %d", len(models.config.SafetySettings))
	}
	for _, s := range models.config.SafetySettings {
		if s.Threshold != genai.HarmBlockThresholdBlockOnlyHigh {
			t.Errorf("expected BLOCK_ONLY_HIGH for %s, got %s", s.Category, s.Threshold)
		}
	}
}

func TestGemini_TextOnlyImageReply(t *testing.T) {
	client := newGeminiTestClient(&mockModelsService{resp: geminiReply(&genai.Part{Text: "no image today"})})
	if _, err := client.GenerateImage(context.Background(), "mojito"); !errors.Is(err, ErrNoImageReturned) {
		t.Errorf("expected ErrNoImageReturned, got %v", err)
	}
}

func TestGemini_SafetyBlock(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}
	client := newGeminiTestClient(&mockModelsService{resp: resp})
	if _, err := client.GenerateImage(context.Background(), "mojito"); !errors.Is(err, ErrRefused) {
		t.Errorf("expected ErrRefused, got %v", err)
	}
}

func TestGemini_NoCandidates(t *testing.T) {
	client := newGeminiTestClient(&mockModelsService{resp: &genai.GenerateContentResponse{}})
	var out testPayload
	if err := client.GenerateJSON(context.Background(), testRequest(), &out); !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestToGeminiSchema(t *testing.T) {
	s := toGeminiSchema(SchemaFor(&testPayload{}))
	items, ok := s.Properties["items"]
	if !ok || items.Type != genai.TypeArray {
		t.Fatalf("expected items array, got %+v", s.Properties)
	}
	if items.Items == nil || items.Items.Type != genai.TypeObject {
		t.Fatalf("expected object items, got %+v", items.Items)
	}
	name := items.Items.Properties["name"]
	if name == nil || name.Type != genai.TypeString || name.Description != "Item name." {
		t.Errorf("unexpected name schema %+v", name)
	}
	if len(s.Required) != 1 || s.Required[0] != "items" {
		t.Errorf("expected items to be required, got %v", s.Required)
	}
}
