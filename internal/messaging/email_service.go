package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/canmore-mixology/barkeep/internal/models"
)

// mailDialer is the subset of *gomail.Dialer used by EmailService.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailOpts holds SMTP configuration for the email channel.
type EmailOpts struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	SenderName string
}

// EmailService implements Service over SMTP. The first line of a message
// body becomes the subject.
type EmailService struct {
	receiptEmitter
	dialer     mailDialer
	from       string
	senderName string
}

// NewEmailService creates the "email" channel.
func NewEmailService(opts EmailOpts) (*EmailService, error) {
	if opts.Host == "" || opts.Port == 0 {
		return nil, fmt.Errorf("SMTP host and port must be provided")
	}
	from := opts.From
	if from == "" {
		from = opts.Username
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return nil, fmt.Errorf("invalid SMTP sender address %q: %w", from, err)
	}
	d := gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password)
	return newEmailService(d, from, opts.SenderName), nil
}

func newEmailService(d mailDialer, from, senderName string) *EmailService {
	s := &EmailService{dialer: d, from: from, senderName: senderName}
	s.init(models.ChannelEmail)
	return s
}

// ValidateAndCanonicalizeRecipient parses an RFC 5322 address and returns
// the bare lower-cased address.
func (s *EmailService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(recipient))
	if err != nil {
		return "", fmt.Errorf("invalid email address %q: %w", recipient, err)
	}
	return strings.ToLower(addr.Address), nil
}

// Start is a no-op; a connection is dialed per message.
func (s *EmailService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the receipt channel.
func (s *EmailService) Stop() error {
	s.stop()
	return nil
}

// SendMessage mails body to the recipient and emits a sent receipt.
func (s *EmailService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, text := splitSubject(body)
	m := gomail.NewMessage()
	if s.senderName != "" {
		m.SetAddressHeader("From", s.from, s.senderName)
	} else {
		m.SetHeader("From", s.from)
	}
	m.SetHeader("To", canonicalTo)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", text)

	if err := s.dialer.DialAndSend(m); err != nil {
		slog.Error("EmailService.SendMessage: SMTP send failed", "to", canonicalTo, "error", err)
		return fmt.Errorf("failed to send email to %s: %w", canonicalTo, err)
	}
	slog.Debug("EmailService.SendMessage: email sent", "to", canonicalTo, "subject", subject)
	s.emit(canonicalTo, models.MessageStatusSent)
	return nil
}

func splitSubject(body string) (string, string) {
	first, rest, found := strings.Cut(body, "\n")
	if !found {
		return body, body
	}
	return strings.TrimSpace(first), strings.TrimLeft(rest, "\n")
}
