package messaging

import (
	"fmt"
	"strings"

	"github.com/canmore-mixology/barkeep/internal/models"
)

// FormatNotification renders the operator-facing text for a notification
// kind. The first line is a headline used as the email subject.
func FormatNotification(kind string, req models.ContactRequest) (string, error) {
	var b strings.Builder
	switch kind {
	case models.NotificationQuoteRequest:
		fmt.Fprintf(&b, "New quote request from %s\n\n", req.Name)
	case models.NotificationEventReminder:
		fmt.Fprintf(&b, "Upcoming event for %s on %s\n\n", req.Name, req.EventDate)
	default:
		return "", fmt.Errorf("unknown notification kind %q", kind)
	}

	fmt.Fprintf(&b, "Name: %s\n", req.Name)
	fmt.Fprintf(&b, "Email: %s\n", req.Email)
	fmt.Fprintf(&b, "Event date: %s\n", orNotGiven(req.EventDate))
	fmt.Fprintf(&b, "Event details: %s\n", orNotGiven(req.EventDetails))
	fmt.Fprintf(&b, "\nMessage:\n%s\n", req.Message)
	if req.ID != "" {
		fmt.Fprintf(&b, "\nReference: %s", req.ID)
	}
	return b.String(), nil
}

func orNotGiven(s string) string {
	if s == "" {
		return "not given"
	}
	return s
}
