package genai

import "time"

// Default models per provider.
const (
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultOpenAIImageModel = "gpt-image-1"
	DefaultGeminiModel      = "gemini-2.0-flash"
	DefaultGeminiImageModel = "gemini-2.0-flash-exp"
	DefaultTemperature      = 0.8
)

// Opts holds configuration for the GenAI client.
type Opts struct {
	Provider    Provider
	APIKey      string
	Model       string
	ImageModel  string
	Temperature float64
	Timeout     time.Duration
	DebugMode   bool
	StateDir    string
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithProvider selects the hosted model provider.
func WithProvider(p Provider) Option {
	return func(o *Opts) {
		o.Provider = p
	}
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the text model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithImageModel overrides the image model.
func WithImageModel(model string) Option {
	return func(o *Opts) {
		o.ImageModel = model
	}
}

// WithTemperature sets the sampling temperature for text generation.
func WithTemperature(t float64) Option {
	return func(o *Opts) {
		o.Temperature = t
	}
}

// WithTimeout bounds every provider call. Zero keeps the SDK defaults.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithDebugMode enables per-call debug files under <stateDir>/debug.
func WithDebugMode(enabled bool) Option {
	return func(o *Opts) {
		o.DebugMode = enabled
	}
}

// WithStateDir sets the state directory used for debug files.
func WithStateDir(dir string) Option {
	return func(o *Opts) {
		o.StateDir = dir
	}
}
