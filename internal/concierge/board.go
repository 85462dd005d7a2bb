// Package concierge orchestrates a suggestion request: it fetches the
// suggestions, then resolves one image per suggestion concurrently while
// keeping the result set index-aligned.
package concierge

import (
	"log/slog"
	"sync"

	"github.com/canmore-mixology/barkeep/internal/models"
)

// Generation identifies one result set on a board. Zero means empty.
type Generation uint64

// UpdateKind tells subscribers what changed.
type UpdateKind string

const (
	UpdateReset UpdateKind = "reset"
	UpdateImage UpdateKind = "image"
	UpdateClear UpdateKind = "clear"
)

// Update is delivered to subscribers after every accepted change.
type Update struct {
	Kind       UpdateKind
	Generation Generation
	// Index and Image are set for UpdateImage.
	Index int
	Image models.ImageResult
	// Slots is set for UpdateReset.
	Slots []models.Slot
}

const subscriberBuffer = 64

// Board holds one list of suggestions and their image results. Slot updates
// carry the generation they were started for and are dropped when the board
// has since been reset or cleared.
type Board struct {
	mu      sync.Mutex
	gen     Generation
	slots   []models.Slot
	pending int
	subs    map[int]chan Update
	nextSub int
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{subs: make(map[int]chan Update)}
}

// Reset replaces the result set with suggestions, every image pending, and
// returns the new generation.
func (b *Board) Reset(suggestions []models.CocktailSuggestion) Generation {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gen++
	b.slots = make([]models.Slot, len(suggestions))
	for i, s := range suggestions {
		b.slots[i] = models.Slot{
			Index:      i,
			Suggestion: s,
			Image:      models.ImageResult{Status: models.ImageStatusPending},
		}
	}
	b.pending = len(suggestions)
	b.publish(Update{Kind: UpdateReset, Generation: b.gen, Slots: copySlots(b.slots)})
	return b.gen
}

// Resolve marks slot i ready. It reports false when gen is stale, i is out
// of range or the slot already settled.
func (b *Board) Resolve(gen Generation, i int, imageURL, archiveURL string) bool {
	return b.settle(gen, i, models.ImageResult{
		Status:     models.ImageStatusReady,
		ImageURL:   imageURL,
		ArchiveURL: archiveURL,
	})
}

// Fail marks slot i failed with reason. Same acceptance rules as Resolve.
func (b *Board) Fail(gen Generation, i int, reason string) bool {
	return b.settle(gen, i, models.ImageResult{Status: models.ImageStatusFailed, Error: reason})
}

func (b *Board) settle(gen Generation, i int, res models.ImageResult) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen {
		slog.Debug("Board.settle: dropping stale result", "generation", gen, "current", b.gen, "index", i)
		return false
	}
	if i < 0 || i >= len(b.slots) {
		slog.Warn("Board.settle: index out of range", "index", i, "slots", len(b.slots))
		return false
	}
	if b.slots[i].Image.Settled() {
		return false
	}
	b.slots[i].Image = res
	b.pending--
	b.publish(Update{Kind: UpdateImage, Generation: gen, Index: i, Image: res})
	return true
}

// Clear empties the board. In-flight results for the previous generation
// are discarded when they arrive.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.slots = nil
	b.pending = 0
	b.publish(Update{Kind: UpdateClear, Generation: b.gen})
}

// Generation returns the current generation.
func (b *Board) Generation() Generation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() models.BoardSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.BoardSnapshot{
		Generation: uint64(b.gen),
		Slots:      copySlots(b.slots),
		Pending:    b.pending,
	}
}

// Subscribe returns a channel of updates and a function that unsubscribes
// and closes it. A subscriber that falls behind by more than the buffer
// misses updates; Snapshot recovers the full state.
func (b *Board) Subscribe() (<-chan Update, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan Update, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// publish must be called with b.mu held.
func (b *Board) publish(u Update) {
	for id, ch := range b.subs {
		select {
		case ch <- u:
		default:
			slog.Warn("Board.publish: subscriber buffer full, dropping update", "subscriber", id, "kind", u.Kind)
		}
	}
}

func copySlots(in []models.Slot) []models.Slot {
	if in == nil {
		return []models.Slot{}
	}
	out := make([]models.Slot, len(in))
	copy(out, in)
	return out
}
