// Package flow implements the two hosted-model flows behind the concierge:
// cocktail suggestions from free text and a single image per phrase.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/canmore-mixology/barkeep/internal/genai"
	"github.com/canmore-mixology/barkeep/internal/models"
)

var (
	// ErrMalformedOutput is returned when the model reply does not match the
	// suggestion schema (missing name, recipe or imagePrompt).
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrNoGenerator is returned when no generator is registered for a mode.
	ErrNoGenerator = errors.New("no generator registered for mode")
)

// Generator produces cocktail suggestions for one concierge mode.
type Generator interface {
	Suggest(ctx context.Context, text string) ([]models.CocktailSuggestion, error)
}

// Registry maps a concierge mode to the Generator that serves it.
type Registry struct {
	mu         sync.RWMutex
	generators map[models.ConciergeMode]Generator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[models.ConciergeMode]Generator)}
}

// Register associates a mode with a Generator implementation.
func (r *Registry) Register(mode models.ConciergeMode, gen Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[mode] = gen
}

// Get retrieves the Generator for a mode.
func (r *Registry) Get(mode models.ConciergeMode) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gen, ok := r.generators[mode]
	return gen, ok
}

// Suggest finds and runs the Generator for the mode.
// An unsupported mode is a validation error on the "mode" field.
func (r *Registry) Suggest(ctx context.Context, mode models.ConciergeMode, text string) ([]models.CocktailSuggestion, error) {
	if !models.IsValidMode(mode) {
		req := models.SuggestionRequest{Mode: mode, Text: text}
		return nil, req.Validate()
	}
	gen, ok := r.Get(mode)
	if !ok {
		slog.Error("Registry.Suggest: no generator registered", "mode", mode)
		return nil, fmt.Errorf("%w: %s", ErrNoGenerator, mode)
	}
	slog.Debug("Registry.Suggest invoked", "mode", mode, "inputLength", len(text))
	out, err := gen.Suggest(ctx, text)
	if err != nil {
		return nil, err
	}
	slog.Debug("Registry.Suggest succeeded", "mode", mode, "count", len(out))
	return out, nil
}

// NewDefaultRegistry registers a SuggestionFlow for both built-in modes.
func NewDefaultRegistry(client genai.ClientInterface, prompts *Prompts) *Registry {
	r := NewRegistry()
	r.Register(models.ModeIngredients, NewSuggestionFlow(models.ModeIngredients, client, prompts))
	r.Register(models.ModeFlavor, NewSuggestionFlow(models.ModeFlavor, client, prompts))
	return r
}
