package messaging

import (
	"context"
	"log/slog"

	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/twilio"
)

// TwilioService implements Service over the Twilio Messages API, either as
// plain SMS or as WhatsApp through a Twilio sender.
type TwilioService struct {
	receiptEmitter
	client   twilio.Sender
	whatsapp bool
}

// NewTwilioSMSService creates the "sms" channel.
func NewTwilioSMSService(client twilio.Sender) *TwilioService {
	s := &TwilioService{client: client}
	s.init(models.ChannelSMS)
	return s
}

// NewTwilioWhatsAppService creates the "twilio-whatsapp" channel.
func NewTwilioWhatsAppService(client twilio.Sender) *TwilioService {
	s := &TwilioService{client: client, whatsapp: true}
	s.init(models.ChannelTwilioWhatsApp)
	return s
}

// ValidateAndCanonicalizeRecipient returns the number in E.164 form.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	digits, err := canonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	return "+" + digits, nil
}

// Start is a no-op for Twilio.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the receipt channel.
func (s *TwilioService) Stop() error {
	s.stop()
	return nil
}

// SendMessage sends via Twilio and emits a sent receipt.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "channel", s.channel, "error", err, "to", to)
		return err
	}

	if s.whatsapp {
		err = s.client.SendWhatsApp(ctx, canonicalTo, body)
	} else {
		err = s.client.SendSMS(ctx, canonicalTo, body)
	}
	if err != nil {
		return err
	}

	s.emit(canonicalTo, models.MessageStatusSent)
	return nil
}
