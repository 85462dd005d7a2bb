package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/store"
)

// ErrUnknownChannel is returned for an outbox message addressed to a
// channel with no registered service.
var ErrUnknownChannel = errors.New("no service registered for channel")

// ReceiptStore persists delivery receipts.
type ReceiptStore interface {
	AddReceipt(r models.Receipt) error
}

type route struct {
	service   Service
	recipient string
}

// Dispatcher routes outbox notifications to the service registered for
// their channel and records every receipt.
type Dispatcher struct {
	routes   map[string]route
	receipts ReceiptStore
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher writing receipts to rs.
func NewDispatcher(rs ReceiptStore) *Dispatcher {
	return &Dispatcher{routes: make(map[string]route), receipts: rs}
}

// Register routes svc's channel to recipient. The recipient is validated by
// the service.
func (d *Dispatcher) Register(svc Service, recipient string) error {
	canonical, err := svc.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		return fmt.Errorf("invalid recipient for %s channel: %w", svc.Name(), err)
	}
	d.routes[svc.Name()] = route{service: svc, recipient: canonical}
	slog.Debug("Dispatcher.Register: channel registered", "channel", svc.Name(), "recipient", canonical)
	return nil
}

// Channels returns the registered channel names in sorted order.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.routes))
	for name := range d.routes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Start starts every service and persists the receipts they emit.
func (d *Dispatcher) Start(ctx context.Context) error {
	for name, r := range d.routes {
		if err := r.service.Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s service: %w", name, err)
		}
		d.wg.Add(1)
		go d.drainReceipts(r.service)
	}
	return nil
}

// Stop stops every service and waits for their receipts to be stored.
func (d *Dispatcher) Stop() {
	for name, r := range d.routes {
		if err := r.service.Stop(); err != nil {
			slog.Warn("Dispatcher.Stop: service stop failed", "channel", name, "error", err)
		}
	}
	d.wg.Wait()
}

func (d *Dispatcher) drainReceipts(svc Service) {
	defer d.wg.Done()
	for r := range svc.Receipts() {
		d.record(r)
	}
}

func (d *Dispatcher) record(r models.Receipt) {
	if err := d.receipts.AddReceipt(r); err != nil {
		slog.Error("Dispatcher.record: failed to store receipt", "channel", r.Channel, "to", r.To, "status", r.Status, "error", err)
	}
}

// Send delivers one outbox message. It satisfies store.OutboxSendFunc.
func (d *Dispatcher) Send(ctx context.Context, msg store.OutboxMessage) error {
	r, ok := d.routes[msg.Channel]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, msg.Channel)
	}
	var req models.ContactRequest
	if err := json.Unmarshal([]byte(msg.PayloadJSON), &req); err != nil {
		return fmt.Errorf("invalid %s payload: %w", msg.Kind, err)
	}
	body, err := FormatNotification(msg.Kind, req)
	if err != nil {
		return err
	}

	if err := r.service.SendMessage(ctx, r.recipient, body); err != nil {
		d.record(models.Receipt{
			To:      r.recipient,
			Channel: msg.Channel,
			Status:  models.MessageStatusFailed,
			Time:    time.Now().Unix(),
		})
		return fmt.Errorf("%s delivery failed: %w", msg.Channel, err)
	}
	slog.Info("Dispatcher.Send: notification delivered", "channel", msg.Channel, "kind", msg.Kind, "id", req.ID)
	return nil
}
