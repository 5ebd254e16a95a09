// Package domain contains the core business entities for the enrollment service.
package domain

import "errors"

// Domain errors - represent business rule violations.
var (
	// ErrValidation is returned for malformed or incomplete requests.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound is returned when an event, member or payment does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEventUnavailable is returned when the event's lifecycle status disallows enrollment.
	ErrEventUnavailable = errors.New("event is not open for enrollment")

	// ErrCapacityExceeded is returned when every seat of an event is taken.
	ErrCapacityExceeded = errors.New("event capacity reached")

	// ErrDuplicateRegistration is returned when the participant is already registered for the event.
	ErrDuplicateRegistration = errors.New("participant already registered for event")

	// ErrMembershipActive is returned when a member with an active membership starts a checkout.
	ErrMembershipActive = errors.New("membership already active")

	// ErrPaymentGatewayError is returned when Mercado Pago fails.
	ErrPaymentGatewayError = errors.New("payment gateway error")

	// ErrWebhookValidationFailed is returned when x-signature is invalid.
	ErrWebhookValidationFailed = errors.New("webhook signature validation failed")

	// ErrEntityNotFound is returned when a webhook references a payment we never created.
	// Redelivery will not fix it.
	ErrEntityNotFound = errors.New("reconciliation target not found")

	// ErrTransientStore is returned for store failures that may succeed on retry.
	ErrTransientStore = errors.New("transient store failure")

	// ErrPaymentSettled is returned when a payment left the pending state before our update.
	ErrPaymentSettled = errors.New("payment already settled")

	// ErrNotification is returned when the confirmation could not be delivered.
	ErrNotification = errors.New("notification failed")

	// ErrInternal is returned for everything else.
	ErrInternal = errors.New("internal error")
)

// ServiceError wraps errors with additional context.
type ServiceError struct {
	Err     error
	Message string
	Code    string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError.
func NewServiceError(err error, message, code string) *ServiceError {
	return &ServiceError{Err: err, Message: message, Code: code}
}

// ValidationError reports the first structural problem found in a request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
