package concierge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/canmore-mixology/barkeep/internal/genai"
	"github.com/canmore-mixology/barkeep/internal/models"
)

// User-facing messages for upstream failures.
const (
	SuggestionsFailedMessage = "Failed to get cocktail suggestions. Please try again."
	ImageFailedMessage       = "Failed to generate cocktail image."
)

// DefaultImageConcurrency leaves image calls unbounded, so every suggestion
// on a page starts its image at once.
const DefaultImageConcurrency = 0

// Suggester is satisfied by *flow.Registry.
type Suggester interface {
	Suggest(ctx context.Context, mode models.ConciergeMode, text string) ([]models.CocktailSuggestion, error)
}

// ImageGenerator is satisfied by *flow.ImageFlow.
type ImageGenerator interface {
	Generate(ctx context.Context, phrase string) (*genai.Image, error)
}

// Archiver stores a generated image and returns its public URL.
type Archiver interface {
	Archive(ctx context.Context, img *genai.Image) (string, error)
}

// Opts holds configuration for the concierge service.
type Opts struct {
	ImageConcurrency int
	ImageTimeout     time.Duration
	Archiver         Archiver
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithImageConcurrency bounds concurrent image calls per result set. Zero
// or less means no bound.
func WithImageConcurrency(n int) Option {
	return func(o *Opts) {
		o.ImageConcurrency = n
	}
}

// WithImageTimeout bounds each image call. Zero leaves the transport defaults.
func WithImageTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ImageTimeout = d
	}
}

// WithArchiver uploads every generated image.
func WithArchiver(a Archiver) Option {
	return func(o *Opts) {
		o.Archiver = a
	}
}

// Service runs the suggestion flow and resolves images for its results.
type Service struct {
	suggester        Suggester
	images           ImageGenerator
	archiver         Archiver
	imageConcurrency int
	imageTimeout     time.Duration

	inflight sync.WaitGroup
}

// NewService creates a concierge service.
func NewService(suggester Suggester, images ImageGenerator, opts ...Option) *Service {
	cfg := Opts{ImageConcurrency: DefaultImageConcurrency}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		suggester:        suggester,
		images:           images,
		archiver:         cfg.Archiver,
		imageConcurrency: cfg.ImageConcurrency,
		imageTimeout:     cfg.ImageTimeout,
	}
}

// Suggest returns suggestions for one request. Validation errors are
// returned as *models.ValidationError; anything else is an upstream error.
func (s *Service) Suggest(ctx context.Context, mode models.ConciergeMode, text string) ([]models.CocktailSuggestion, error) {
	out, err := s.suggester.Suggest(ctx, mode, text)
	if err != nil {
		if _, ok := models.IsValidationError(err); !ok {
			slog.Error("Service.Suggest: suggestion flow failed", "mode", mode, "inputLength", len(text), "error", err)
		}
		return nil, err
	}
	return out, nil
}

// GenerateImage generates one image and, when an archiver is configured,
// uploads it. Archive failures are logged and leave ArchiveURL empty.
func (s *Service) GenerateImage(ctx context.Context, phrase string) (models.ImageResponse, error) {
	if s.imageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.imageTimeout)
		defer cancel()
	}
	img, err := s.images.Generate(ctx, phrase)
	if err != nil {
		if _, ok := models.IsValidationError(err); !ok {
			slog.Error("Service.GenerateImage: image flow failed", "phraseLength", len(phrase), "error", err)
		}
		return models.ImageResponse{}, err
	}

	resp := models.ImageResponse{ImageURL: img.DataURI()}
	if s.archiver != nil {
		url, err := s.archiver.Archive(ctx, img)
		if err != nil {
			slog.Warn("Service.GenerateImage: archive upload failed", "error", err)
		} else {
			resp.ArchiveURL = url
		}
	}
	return resp, nil
}

// Run fetches suggestions, resets board with them and starts the image
// fan-out in the background. The fan-out is detached from ctx's
// cancellation; the returned channel is closed once every image settled.
func (s *Service) Run(ctx context.Context, board *Board, mode models.ConciergeMode, text string) (Generation, <-chan struct{}, error) {
	suggestions, err := s.Suggest(ctx, mode, text)
	if err != nil {
		return 0, nil, err
	}
	gen := board.Reset(suggestions)
	slog.Info("Service.Run: suggestions ready, resolving images", "mode", mode, "count", len(suggestions), "generation", gen)

	done := make(chan struct{})
	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer close(done)
		FanOut(bg, board, gen, suggestions, s.GenerateImage, s.imageConcurrency)
		slog.Debug("Service.Run: image fan-out finished", "generation", gen)
	}()
	return gen, done, nil
}

// Wait blocks until every background fan-out has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for image fan-out: %w", ctx.Err())
	}
}
