package models

import (
	"strings"
	"time"
)

// User-facing acknowledgement texts for the contact form.
const (
	ContactValidationFailedMessage = "Validation failed. Please check your input."
	ContactSuccessMessage          = "Your quote request has been submitted successfully! We will get back to you shortly."
	ContactUnavailableMessage      = "We could not submit your request right now. Please try again."
)

// Accepted event date layouts, tried in order.
var eventDateLayouts = []string{"2006-01-02", time.RFC3339}

// ContactRequest is a quote/booking request submitted through the contact form.
type ContactRequest struct {
	ID           string    `json:"id,omitempty"`
	Name         string    `json:"name" validate:"min=2,max=100" msg:"Name must be at least 2 characters." msg_max:"Name must be at most 100 characters."`
	Email        string    `json:"email" validate:"required,email,max=254" msg:"Please enter a valid email address."`
	EventDate    string    `json:"eventDate,omitempty" validate:"max=64"`
	EventDetails string    `json:"eventDetails,omitempty" validate:"max=2000" msg:"Event details must be at most 2000 characters."`
	Message      string    `json:"message" validate:"min=10,max=5000" msg:"Message must be at least 10 characters." msg_max:"Message must be at most 5000 characters."`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// Normalize trims surrounding whitespace from every user-supplied field.
func (r *ContactRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.EventDate = strings.TrimSpace(r.EventDate)
	r.EventDetails = strings.TrimSpace(r.EventDetails)
	r.Message = strings.TrimSpace(r.Message)
}

// Validate checks the request against the contact form schema.
func (r *ContactRequest) Validate() error {
	return ValidateStruct(r)
}

// ParsedEventDate returns the event date when it is in a recognised layout.
// The field is free-form, so an unparseable value is not an error.
func (r *ContactRequest) ParsedEventDate() (time.Time, bool) {
	if r.EventDate == "" {
		return time.Time{}, false
	}
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, r.EventDate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ContactResponse is the `{success, message, errors?}` acknowledgement.
type ContactResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors,omitempty"`
}
