package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/canmore-mixology/barkeep/internal/genai"
	"github.com/canmore-mixology/barkeep/internal/models"
)

// ImageFlow generates one cocktail image per call. Equal phrases are not
// cached or deduplicated.
type ImageFlow struct {
	client  genai.ClientInterface
	prompts *Prompts
}

// NewImageFlow creates an image flow. A nil prompts uses the defaults.
func NewImageFlow(client genai.ClientInterface, prompts *Prompts) *ImageFlow {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &ImageFlow{client: client, prompts: prompts}
}

// Generate validates phrase, wraps it in the menu-photo template and returns
// the generated image.
func (f *ImageFlow) Generate(ctx context.Context, phrase string) (*genai.Image, error) {
	req := models.ImageRequest{Prompt: strings.TrimSpace(phrase)}
	if err := models.ValidateStruct(&req); err != nil {
		return nil, err
	}
	prompt, err := f.prompts.Image.Render(req.Prompt)
	if err != nil {
		return nil, err
	}
	img, err := f.client.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	slog.Debug("ImageFlow.Generate: image generated", "phrase", req.Prompt, "mimeType", img.MIMEType, "bytes", len(img.Data))
	return img, nil
}
