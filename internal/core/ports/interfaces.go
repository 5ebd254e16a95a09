// Package ports defines the interfaces (ports) for the enrollment service.
// These are contracts that adapters must implement.
package ports

import (
	"context"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
)

// PaymentGateway defines the interface for interacting with Mercado Pago.
type PaymentGateway interface {
	// CreateSession creates a hosted checkout session (a Checkout Pro preference).
	CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Session, error)

	// GetCharge retrieves the charge behind a payment notification.
	GetCharge(ctx context.Context, chargeID string) (*domain.ChargeInfo, error)
}

// EventReader reads the catalog events.
type EventReader interface {
	// GetEvent returns domain.ErrNotFound if the event doesn't exist.
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)
}

// CheckoutStore persists the local side of a checkout.
type CheckoutStore interface {
	EventReader

	// GetMember returns domain.ErrNotFound if the member doesn't exist.
	GetMember(ctx context.Context, memberID string) (*domain.Member, error)

	// CreateRegistrationCheckout reserves a seat, inserts the registration,
	// links the waiver acceptance and inserts the pending payment, atomically.
	CreateRegistrationCheckout(ctx context.Context, checkout domain.PendingCheckout, waiverAcceptanceID string) error

	// CreateMembershipCheckout marks the member pending and inserts the pending payment, atomically.
	CreateMembershipCheckout(ctx context.Context, payment *domain.Payment) error

	// AttachSession records the gateway session id on a pending payment.
	AttachSession(ctx context.Context, paymentID, sessionID string) error

	// AbandonCheckout fails the payment, cancels its registration and releases the seat.
	AbandonCheckout(ctx context.Context, paymentID, note string) error
}

// ReconciliationStore persists payment outcomes.
type ReconciliationStore interface {
	// PaymentBySessionID returns domain.ErrNotFound if no payment has that session.
	PaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error)

	// PaymentByID returns domain.ErrNotFound if the payment doesn't exist.
	PaymentByID(ctx context.Context, paymentID string) (*domain.Payment, error)

	// Settle moves a pending payment to a terminal status and applies the
	// subject's transition in one transaction. Returns domain.ErrPaymentSettled
	// if the payment was no longer pending.
	Settle(ctx context.Context, s domain.Settlement) (*domain.Recipient, error)

	// AppendNote appends to the audit trail of the payment's subject.
	AppendNote(ctx context.Context, paymentID, note string) error
}

// EventLedger records processed webhook deliveries.
type EventLedger interface {
	// Seen reports whether an event id reached a terminal outcome before.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Record stores the outcome. Recording an id twice is not an error.
	Record(ctx context.Context, eventID, eventType string, result domain.ReconcileResult) error
}

// ConfirmationNotifier delivers payment confirmations to the user.
type ConfirmationNotifier interface {
	NotifyConfirmation(ctx context.Context, c domain.Confirmation) error
}

// WebhookValidator validates Mercado Pago webhook signatures.
type WebhookValidator interface {
	// ValidateSignature validates the x-signature header from Mercado Pago.
	ValidateSignature(xSignature, xRequestID, dataID string) error
}
