package models

// Notification kinds carried by outbox messages and jobs.
const (
	NotificationQuoteRequest  = "quote_request"
	NotificationEventReminder = "event_reminder"
)

// Notification channel names accepted in NOTIFY_CHANNELS.
const (
	ChannelLog            = "log"
	ChannelEmail          = "email"
	ChannelSMS            = "sms"
	ChannelWhatsApp       = "whatsapp"
	ChannelTwilioWhatsApp = "twilio-whatsapp"
)

// IsValidChannel checks if the given channel name is supported.
func IsValidChannel(c string) bool {
	switch c {
	case ChannelLog, ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelTwilioWhatsApp:
		return true
	default:
		return false
	}
}

// ReminderPayload is the job payload of an event reminder.
type ReminderPayload struct {
	ContactRequestID string `json:"contact_request_id"`
	EventDate        string `json:"event_date"`
}
