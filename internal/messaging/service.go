// Package messaging delivers operator notifications over pluggable channels
// (log, email, SMS and WhatsApp) and records a receipt for every delivery.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/canmore-mixology/barkeep/internal/models"
)

const (
	// DefaultChannelBufferSize is the receipt channel buffer of every service.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds how long a receipt emit may block.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending on a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction.
type Service interface {
	// Name returns the channel name the service serves.
	Name() string

	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier according to the channel's rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing.
	Start(ctx context.Context) error

	// Stop stops background processing and closes the receipt channel.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt
}

// receiptEmitter carries the receipt channel and stop state shared by the
// service implementations.
type receiptEmitter struct {
	channel  string
	receipts chan models.Receipt
	mu       sync.RWMutex
	stopped  bool
}

func (e *receiptEmitter) init(channel string) {
	e.channel = channel
	e.receipts = make(chan models.Receipt, DefaultChannelBufferSize)
}

// Name returns the channel name.
func (e *receiptEmitter) Name() string {
	return e.channel
}

// Receipts returns the channel for receipt events.
func (e *receiptEmitter) Receipts() <-chan models.Receipt {
	return e.receipts
}

func (e *receiptEmitter) isStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

// emit pushes a receipt unless the service stopped or the channel stays
// full for DefaultChannelTimeout.
func (e *receiptEmitter) emit(to string, status models.MessageStatus) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return
	}
	r := models.Receipt{To: to, Channel: e.channel, Status: status, Time: time.Now().Unix()}
	select {
	case e.receipts <- r:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("receiptEmitter.emit: receipts channel blocked, dropping receipt", "channel", e.channel, "to", to)
	}
}

// stop marks the service stopped and closes the receipt channel once.
func (e *receiptEmitter) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	close(e.receipts)
}

// canonicalizePhone strips everything but digits and requires at least six.
func canonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", errors.New("recipient cannot be empty")
	}
	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}
	if canonical != recipient {
		slog.Debug("canonicalizePhone: canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
