package messaging

import (
	"context"
	"log/slog"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/whatsapp"
)

// WhatsAppService implements Service using the whatsmeow-based client.
type WhatsAppService struct {
	receiptEmitter
	client    whatsapp.Sender
	waClient  *whatsapp.Client // set when client is a live connection
	handlerID uint32
}

// NewWhatsAppService creates the "whatsapp" channel.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	s := &WhatsAppService{client: client}
	s.init(models.ChannelWhatsApp)
	if waClient, ok := client.(*whatsapp.Client); ok {
		s.waClient = waClient
	}
	return s
}

// ValidateAndCanonicalizeRecipient returns the number as digits only, which
// is the user part of a WhatsApp JID.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// Start registers the delivery and read receipt handler on a live client.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService.Start: no live client, skipping event handling")
		return nil
	}
	s.handlerID = s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		if r, ok := evt.(*events.Receipt); ok {
			s.handleReceipt(r)
		}
	})
	slog.Debug("WhatsAppService.Start: receipt handler registered")
	return nil
}

// Stop removes the event handler, disconnects and closes the receipt channel.
func (s *WhatsAppService) Stop() error {
	if s.waClient != nil && s.waClient.GetClient() != nil {
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
		s.waClient.Close()
	}
	s.stop()
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}

// SendMessage sends a message and emits a sent receipt.
func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonicalTo)
		return err
	}
	s.emit(canonicalTo, models.MessageStatusSent)
	return nil
}

// handleReceipt converts delivery and read receipts into receipt events.
func (s *WhatsAppService) handleReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	default:
		return
	}
	to := evt.MessageSource.Chat.User
	slog.Debug("WhatsAppService.handleReceipt: receipt", "to", to, "status", status)
	s.emit(to, status)
}
