package concierge

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/canmore-mixology/barkeep/internal/models"
)

// ImageFunc resolves the image for one suggestion's image prompt.
type ImageFunc func(ctx context.Context, phrase string) (models.ImageResponse, error)

// FanOut starts one image resolution per suggestion, at most limit at a
// time (limit <= 0 means unbounded), and records every outcome on board
// under gen. A failure or panic in one resolution only marks its own slot.
// FanOut returns once every resolution has settled.
func FanOut(ctx context.Context, board *Board, gen Generation, suggestions []models.CocktailSuggestion, generate ImageFunc, limit int) {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, s := range suggestions {
		g.Go(func() error {
			resolveOne(ctx, board, gen, i, s.ImagePrompt, generate)
			return nil
		})
	}
	_ = g.Wait()
}

func resolveOne(ctx context.Context, board *Board, gen Generation, i int, phrase string, generate ImageFunc) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("FanOut: image resolution panicked", "index", i, "panic", r)
			board.Fail(gen, i, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if board.Generation() != gen {
		slog.Debug("FanOut: skipping stale slot", "index", i, "generation", gen)
		return
	}
	resp, err := generate(ctx, phrase)
	if err != nil {
		slog.Warn("FanOut: image failed", "index", i, "phrase", phrase, "error", err)
		reason := ImageFailedMessage
		if ve, ok := models.IsValidationError(err); ok {
			reason = ve.Error()
		}
		board.Fail(gen, i, reason)
		return
	}
	board.Resolve(gen, i, resp.ImageURL, resp.ArchiveURL)
}
