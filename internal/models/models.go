// Package models defines the core data structures for barkeep.
//
// It includes the concierge suggestion and image types, the contact/booking
// request, notification receipts and the shared API response envelope.
package models

// MessageStatus represents the delivery status of a notification.
type MessageStatus string

const (
	// MessageStatusSent indicates the notification was handed to the channel.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed indicates the channel rejected the notification.
	MessageStatusFailed MessageStatus = "failed"
	// MessageStatusDelivered indicates the recipient's device received it.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the recipient opened it.
	MessageStatusRead MessageStatus = "read"
)

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusAccepted indicates work was accepted and continues in the background.
	APIStatusAccepted APIStatus = "accepted"
)

// Receipt records one notification delivery attempt on a channel.
type Receipt struct {
	To      string        `json:"to"`
	Channel string        `json:"channel"`
	Status  MessageStatus `json:"status"`
	Time    int64         `json:"time"`
}

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Accepted creates a response for work that continues after the request returns.
func Accepted(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusAccepted).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// ErrorResponse is the `{error: string}` shape returned by the concierge
// endpoints. Fields is set only for input validation failures.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}
