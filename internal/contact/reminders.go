package contact

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/canmore-mixology/barkeep/internal/models"
	"github.com/canmore-mixology/barkeep/internal/store"
)

// RegisterJobHandlers registers the event reminder handler with runner.
func RegisterJobHandlers(runner *store.JobRunner, st store.Store, channels []string) {
	runner.RegisterHandler(models.NotificationEventReminder, makeEventReminderHandler(st, channels))
}

func makeEventReminderHandler(st store.Store, channels []string) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p models.ReminderPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid event_reminder payload: %w", err)
		}
		req, err := st.GetContactRequest(p.ContactRequestID)
		if err != nil {
			return fmt.Errorf("failed to load contact request: %w", err)
		}
		if req == nil {
			slog.Warn("JobHandler.event_reminder: contact request no longer exists, skipping", "id", p.ContactRequestID)
			return nil
		}
		if req.EventDate != p.EventDate {
			slog.Info("JobHandler.event_reminder: event date changed, skipping", "id", req.ID, "scheduled", p.EventDate, "current", req.EventDate)
			return nil
		}
		slog.Info("JobHandler.event_reminder: sending reminder", "id", req.ID, "eventDate", req.EventDate)
		return EnqueueNotifications(st, channels, models.NotificationEventReminder, *req)
	}
}
