// Package twilio wraps the Twilio REST API for SMS and WhatsApp notifications.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	twiliogo "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ErrNotConfigured is returned when credentials or a sender number are missing.
var ErrNotConfigured = errors.New("twilio client not configured")

// Sender sends a text message over SMS or WhatsApp. Recipients are E.164
// numbers without any channel prefix.
type Sender interface {
	SendSMS(ctx context.Context, to string, body string) error
	SendWhatsApp(ctx context.Context, to string, body string) error
}

// messageCreator is the subset of the Twilio API used here.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID   string
	AuthToken    string
	FromSMS      string
	FromWhatsApp string
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromSMS sets the SMS sender number, e.g. "+15550001111".
func WithFromSMS(from string) Option {
	return func(o *Opts) { o.FromSMS = from }
}

// WithFromWhatsApp sets the WhatsApp sender number, with or without the
// "whatsapp:" prefix.
func WithFromWhatsApp(from string) Option {
	return func(o *Opts) { o.FromWhatsApp = from }
}

// Client sends messages through the Twilio Messages API.
type Client struct {
	api          messageCreator
	fromSMS      string
	fromWhatsApp string
}

// Compile-time check that Client implements Sender.
var _ Sender = (*Client)(nil)

// NewClient creates a Twilio client. Unset options fall back to
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER and
// TWILIO_WHATSAPP_FROM.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromSMS == "" {
		cfg.FromSMS = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.FromWhatsApp == "" {
		cfg.FromWhatsApp = os.Getenv("TWILIO_WHATSAPP_FROM")
	}
	slog.Debug("twilio.NewClient: config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromSMS_set", cfg.FromSMS != "",
		"FromWhatsApp_set", cfg.FromWhatsApp != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: account SID and auth token must be provided", ErrNotConfigured)
	}
	if cfg.FromSMS == "" && cfg.FromWhatsApp == "" {
		return nil, fmt.Errorf("%w: a sender number must be provided", ErrNotConfigured)
	}

	rest := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newClient(rest.Api, cfg.FromSMS, cfg.FromWhatsApp), nil
}

func newClient(api messageCreator, fromSMS, fromWhatsApp string) *Client {
	if fromWhatsApp != "" && !strings.HasPrefix(fromWhatsApp, "whatsapp:") {
		fromWhatsApp = "whatsapp:" + fromWhatsApp
	}
	return &Client{api: api, fromSMS: fromSMS, fromWhatsApp: fromWhatsApp}
}

// SendSMS sends a plain SMS.
func (c *Client) SendSMS(ctx context.Context, to string, body string) error {
	if c.fromSMS == "" {
		return fmt.Errorf("%w: no SMS sender number", ErrNotConfigured)
	}
	return c.send(ctx, c.fromSMS, to, body)
}

// SendWhatsApp sends a WhatsApp message through the Twilio sender.
func (c *Client) SendWhatsApp(ctx context.Context, to string, body string) error {
	if c.fromWhatsApp == "" {
		return fmt.Errorf("%w: no WhatsApp sender number", ErrNotConfigured)
	}
	return c.send(ctx, c.fromWhatsApp, "whatsapp:"+to, body)
}

func (c *Client) send(ctx context.Context, from, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	resp, err := c.api.CreateMessage(params)
	if err != nil {
		slog.Error("Client.send: Twilio CreateMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Client.send: Twilio message sent", "to", to, "sid", sid)
	return nil
}
