package messaging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/canmore-mixology/barkeep/internal/models"
)

// LogService implements Service by writing notifications to the log.
type LogService struct {
	receiptEmitter
}

// NewLogService creates the "log" channel.
func NewLogService() *LogService {
	s := &LogService{}
	s.init(models.ChannelLog)
	return s
}

// ValidateAndCanonicalizeRecipient accepts any recipient; empty means "operator".
func (s *LogService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	if r := strings.TrimSpace(recipient); r != "" {
		return r, nil
	}
	return "operator", nil
}

func (s *LogService) Start(ctx context.Context) error { return nil }

func (s *LogService) Stop() error {
	s.stop()
	return nil
}

// SendMessage logs the notification at Info level.
func (s *LogService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	canonicalTo, _ := s.ValidateAndCanonicalizeRecipient(to)
	slog.Info("LogService.SendMessage: notification", "to", canonicalTo, "body", body)
	s.emit(canonicalTo, models.MessageStatusSent)
	return nil
}
