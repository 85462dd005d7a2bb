package genai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// modelsService is the subset of the Gemini models API used here.
type modelsService interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type geminiBackend struct {
	models      modelsService
	model       string
	imageModel  string
	temperature float32
}

// imageSafetySettings blocks only high-probability harm in the four
// adjustable categories.
var imageSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockOnlyHigh},
}

func newGeminiBackend(ctx context.Context, apiKey, model, imageModel string, temperature float64) (*geminiBackend, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &geminiBackend{
		models:      cli.Models,
		model:       model,
		imageModel:  imageModel,
		temperature: float32(temperature),
	}, nil
}

func (b *geminiBackend) generateJSON(ctx context.Context, req StructuredRequest) (string, any, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(b.temperature),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    toGeminiSchema(req.Schema),
	}
	resp, err := b.models.GenerateContent(ctx, b.model, genai.Text(req.UserPrompt), config)
	if err != nil {
		return "", config, fmt.Errorf("gemini generate content failed: %w", err)
	}
	parts, err := firstCandidateParts(resp)
	if err != nil {
		return "", config, err
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Text != "" && !p.Thought {
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), config, nil
}

func (b *geminiBackend) generateImage(ctx context.Context, prompt string) (*Image, any, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		SafetySettings:     imageSafetySettings,
	}
	resp, err := b.models.GenerateContent(ctx, b.imageModel, genai.Text(prompt), config)
	if err != nil {
		return nil, config, fmt.Errorf("gemini image generation failed: %w", err)
	}
	parts, err := firstCandidateParts(resp)
	if err != nil {
		return nil, config, err
	}
	for _, p := range parts {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return &Image{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}, config, nil
		}
	}
	return nil, config, ErrNoImageReturned
}

// firstCandidateParts returns the parts of the first candidate, mapping
// prompt blocks and safety stops to ErrRefused.
func firstCandidateParts(resp *genai.GenerateContentResponse) ([]*genai.Part, error) {
	if resp == nil {
		return nil, ErrNoChoicesReturned
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrRefused, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, ErrNoChoicesReturned
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: response blocked by safety filters", ErrRefused)
	}
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return nil, ErrEmptyResponse
	}
	return cand.Content.Parts, nil
}
