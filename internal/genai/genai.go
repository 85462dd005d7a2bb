// Package genai provides structured text and image generation against a
// hosted model provider (OpenAI or Gemini).
package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

// Provider names a hosted model backend.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

var (
	// ErrAPIKeyNotSet is returned when no API key is configured for the provider.
	ErrAPIKeyNotSet = errors.New("genai API key not set")
	// ErrNoChoicesReturned is returned when the model produced no candidates.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrEmptyResponse is returned when the model produced an empty message.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrRefused is returned when the model or its safety filters declined the request.
	ErrRefused = errors.New("model refused the request")
	// ErrNoImageReturned is returned when an image call produced no image data.
	ErrNoImageReturned = errors.New("no image returned")
	// ErrUnsupportedProvider is returned for a provider other than openai or gemini.
	ErrUnsupportedProvider = errors.New("unsupported genai provider")
)

// StructuredRequest is one schema-constrained generation call.
type StructuredRequest struct {
	// Name identifies the output schema to the provider (e.g. "cocktail_suggestions").
	Name         string
	Description  string
	SystemPrompt string
	UserPrompt   string
	Schema       *jsonschema.Schema
}

// Image is raw image bytes with their MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURI renders the image as an embeddable data URI.
func (i *Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// ClientInterface is implemented by Client and by test doubles.
type ClientInterface interface {
	GenerateJSON(ctx context.Context, req StructuredRequest, out any) error
	GenerateImage(ctx context.Context, prompt string) (*Image, error)
}

// backend is one provider's implementation of the two calls.
type backend interface {
	generateJSON(ctx context.Context, req StructuredRequest) (raw string, params any, err error)
	generateImage(ctx context.Context, prompt string) (img *Image, params any, err error)
}

// Client routes generation calls to the configured provider backend.
type Client struct {
	provider   Provider
	backend    backend
	model      string
	imageModel string
	timeout    time.Duration
	debugMode  bool
	stateDir   string
}

// Compile-time check that Client implements ClientInterface.
var _ ClientInterface = (*Client)(nil)

// NewClient initializes a new GenAI client for the configured provider.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Provider: ProviderOpenAI, Temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w for provider %s", ErrAPIKeyNotSet, cfg.Provider)
	}

	c := &Client{
		provider:  cfg.Provider,
		timeout:   cfg.Timeout,
		debugMode: cfg.DebugMode,
		stateDir:  cfg.StateDir,
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		c.model = firstNonEmpty(cfg.Model, DefaultOpenAIModel)
		c.imageModel = firstNonEmpty(cfg.ImageModel, DefaultOpenAIImageModel)
		c.backend = newOpenAIBackend(cfg.APIKey, c.model, c.imageModel, cfg.Temperature)
	case ProviderGemini:
		c.model = firstNonEmpty(cfg.Model, DefaultGeminiModel)
		c.imageModel = firstNonEmpty(cfg.ImageModel, DefaultGeminiImageModel)
		b, err := newGeminiBackend(context.Background(), cfg.APIKey, c.model, c.imageModel, cfg.Temperature)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		c.backend = b
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}

	slog.Debug("genai.NewClient: client created", "provider", c.provider, "model", c.model, "imageModel", c.imageModel, "debug", c.debugMode)
	return c, nil
}

// Provider returns the configured provider name.
func (c *Client) Provider() Provider {
	return c.provider
}

// GenerateJSON sends the system and user prompt with the declared schema and
// unmarshals the model's JSON reply into out.
func (c *Client) GenerateJSON(ctx context.Context, req StructuredRequest, out any) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, params, err := c.backend.generateJSON(ctx, req)
	c.logDebugCall("GenerateJSON", c.model, params, raw, err)
	if err != nil {
		slog.Error("Client.GenerateJSON: provider call failed", "provider", c.provider, "schema", req.Name, "error", err)
		return err
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		slog.Warn("Client.GenerateJSON: reply is not valid JSON", "provider", c.provider, "schema", req.Name, "error", err)
		return fmt.Errorf("failed to decode %s reply: %w", req.Name, err)
	}
	slog.Debug("Client.GenerateJSON: reply decoded", "provider", c.provider, "schema", req.Name, "bytes", len(raw))
	return nil
}

// GenerateImage produces one image for prompt.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*Image, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	img, params, err := c.backend.generateImage(ctx, prompt)
	var summary any
	if img != nil {
		summary = map[string]any{"mimeType": img.MIMEType, "bytes": len(img.Data)}
	}
	c.logDebugCall("GenerateImage", c.imageModel, params, summary, err)
	if err != nil {
		slog.Error("Client.GenerateImage: provider call failed", "provider", c.provider, "promptLength", len(prompt), "error", err)
		return nil, err
	}
	if img == nil || len(img.Data) == 0 {
		return nil, ErrNoImageReturned
	}
	if img.MIMEType == "" {
		img.MIMEType = "image/png"
	}
	return img, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
