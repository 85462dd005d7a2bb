package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/canmore-mixology/barkeep/internal/genai"
	"github.com/canmore-mixology/barkeep/internal/models"
)

// suggestionOutput is the structured reply requested from the model.
type suggestionOutput struct {
	Cocktails []models.CocktailSuggestion `json:"cocktails" validate:"dive" jsonschema_description:"The suggested cocktails, in order of preference."`
}

var suggestionSchema = genai.SchemaFor(&suggestionOutput{})

// SuggestionFlow turns a free-text request of one mode into a list of
// cocktail suggestions.
type SuggestionFlow struct {
	mode    models.ConciergeMode
	client  genai.ClientInterface
	prompts *Prompts
}

// NewSuggestionFlow creates a flow for mode. A nil prompts uses the defaults.
func NewSuggestionFlow(mode models.ConciergeMode, client genai.ClientInterface, prompts *Prompts) *SuggestionFlow {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &SuggestionFlow{mode: mode, client: client, prompts: prompts}
}

// Suggest validates text, asks the model for suggestions and checks every
// returned item. The list is returned in model order and at whatever length
// the model produced.
func (f *SuggestionFlow) Suggest(ctx context.Context, text string) ([]models.CocktailSuggestion, error) {
	req := models.SuggestionRequest{Mode: f.mode, Text: text}
	if err := req.Validate(); err != nil {
		slog.Debug("SuggestionFlow.Suggest: invalid input", "mode", f.mode, "error", err)
		return nil, err
	}

	pt, err := f.prompts.ForMode(f.mode)
	if err != nil {
		return nil, err
	}
	userPrompt, err := pt.Render(req.Text)
	if err != nil {
		return nil, err
	}

	var out suggestionOutput
	err = f.client.GenerateJSON(ctx, genai.StructuredRequest{
		Name:         pt.Name,
		Description:  pt.Description,
		SystemPrompt: pt.System,
		UserPrompt:   userPrompt,
		Schema:       suggestionSchema,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("suggestion generation failed: %w", err)
	}

	for i := range out.Cocktails {
		c := &out.Cocktails[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Recipe = strings.TrimSpace(c.Recipe)
		c.ImagePrompt = strings.TrimSpace(c.ImagePrompt)
	}
	if err := models.ValidateStruct(&out); err != nil {
		slog.Warn("SuggestionFlow.Suggest: model output failed validation", "mode", f.mode, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if out.Cocktails == nil {
		out.Cocktails = []models.CocktailSuggestion{}
	}

	slog.Debug("SuggestionFlow.Suggest: received suggestions", "mode", f.mode, "count", len(out.Cocktails))
	return out.Cocktails, nil
}
