package models

import (
	"errors"
	"strings"
)

// ConciergeMode selects which suggestion flow handles a request.
type ConciergeMode string

const (
	// ModeIngredients suggests cocktails from a comma-separated ingredient list.
	ModeIngredients ConciergeMode = "ingredients"
	// ModeFlavor suggests cocktails from a description of desired flavors.
	ModeFlavor ConciergeMode = "flavor"
)

// ErrInvalidMode is returned for a concierge mode other than ingredients or flavor.
var ErrInvalidMode = errors.New("invalid concierge mode")

// IsValidMode checks if the given mode is supported.
func IsValidMode(m ConciergeMode) bool {
	switch m {
	case ModeIngredients, ModeFlavor:
		return true
	default:
		return false
	}
}

// IngredientsRequest is the body of the ingredients suggestion endpoint.
type IngredientsRequest struct {
	Ingredients string `json:"ingredients" validate:"min=3,max=500" msg:"Please list at least one ingredient." msg_max:"Please keep the ingredient list under 500 characters."`
}

// FlavorRequest is the body of the flavor suggestion endpoint.
type FlavorRequest struct {
	FlavorPreferences string `json:"flavorPreferences" validate:"min=3,max=500" msg:"Please describe your desired flavor." msg_max:"Please keep the flavor description under 500 characters."`
}

// SuggestionRequest is one concierge submission. It lives only for the
// duration of the request.
type SuggestionRequest struct {
	Mode ConciergeMode `json:"mode"`
	Text string        `json:"text"`
}

// Validate trims the text and checks it against the form schema of its mode,
// so field errors are keyed by the form field ("ingredients" or
// "flavorPreferences").
func (r *SuggestionRequest) Validate() error {
	r.Text = strings.TrimSpace(r.Text)
	switch r.Mode {
	case ModeIngredients:
		return ValidateStruct(&IngredientsRequest{Ingredients: r.Text})
	case ModeFlavor:
		return ValidateStruct(&FlavorRequest{FlavorPreferences: r.Text})
	default:
		return &ValidationError{Fields: map[string][]string{"mode": {"Please choose ingredients or flavor."}}}
	}
}

// CocktailSuggestion is one cocktail returned by the suggestion flow.
type CocktailSuggestion struct {
	Name        string `json:"name" validate:"required" jsonschema_description:"The name of the cocktail."`
	Recipe      string `json:"recipe" validate:"required" jsonschema_description:"The detailed recipe for the cocktail, including ingredients and step-by-step instructions. Format as a single string with newlines for readability."`
	ImagePrompt string `json:"imagePrompt" validate:"required" jsonschema_description:"A concise 2-3 word prompt suitable for generating an image of this cocktail, e.g. \"classic margarita lime\" or \"smoky old fashioned\"."`
}

// ImageRequest is the body of the image endpoint.
type ImageRequest struct {
	Prompt string `json:"prompt" validate:"min=1,max=200" msg:"Please provide a short image description." msg_max:"Please keep the image description under 200 characters."`
}

// ImageResponse is the `{imageUrl}` shape returned by the image endpoint.
type ImageResponse struct {
	ImageURL   string `json:"imageUrl"`
	ArchiveURL string `json:"archiveUrl,omitempty"`
}

// ImageStatus is the lifecycle state of a suggestion's image.
type ImageStatus string

const (
	ImageStatusPending ImageStatus = "pending"
	ImageStatusReady   ImageStatus = "ready"
	ImageStatusFailed  ImageStatus = "failed"
)

// ImageResult is attached to a suggestion by index.
type ImageResult struct {
	Status     ImageStatus `json:"status"`
	ImageURL   string      `json:"imageUrl,omitempty"`
	ArchiveURL string      `json:"archiveUrl,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Settled reports whether the image has left the pending state.
func (r ImageResult) Settled() bool {
	return r.Status == ImageStatusReady || r.Status == ImageStatusFailed
}

// Slot pairs a suggestion with its image result.
type Slot struct {
	Index      int                `json:"index"`
	Suggestion CocktailSuggestion `json:"suggestion"`
	Image      ImageResult        `json:"image"`
}

// BoardSnapshot is a point-in-time copy of a suggestion board.
type BoardSnapshot struct {
	Generation uint64 `json:"generation"`
	Slots      []Slot `json:"slots"`
	Pending    int    `json:"pending"`
}
