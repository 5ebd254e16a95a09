// Package domain contains the core business entities for the enrollment service.
// This is the innermost layer - no external dependencies.
package domain

import "time"

// EventStatus is the lifecycle status of a catalog event.
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusClosed    EventStatus = "closed"
)

// Event is a paid club event. The catalog owns it; this service only reads it
// and moves the participant counter.
type Event struct {
	ID                  string      `json:"id"`
	Title               string      `json:"title"`
	MaxParticipants     int         `json:"max_participants"`
	CurrentParticipants int         `json:"current_participants"`
	PriceCents          int64       `json:"price_cents"`
	Currency            string      `json:"currency"`
	Status              EventStatus `json:"status"`
}

// IsFull reports whether every seat is taken.
func (e *Event) IsFull() bool {
	return e.CurrentParticipants >= e.MaxParticipants
}

// RegistrationStatus is the lifecycle status of a registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// Participant is the identity and contact data of the person enrolling.
type Participant struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	NationalID string `json:"national_id"`
}

// FullName joins first and last name.
func (p Participant) FullName() string {
	return fullName(p.FirstName, p.LastName)
}

func fullName(first, last string) string {
	if last == "" {
		return first
	}
	return first + " " + last
}

// Consents holds the already-validated consent flags and when they were given.
type Consents struct {
	PrivacyAccepted        bool      `json:"privacy_accepted"`
	ChannelSharingAccepted bool      `json:"channel_sharing_accepted"`
	MarketingAccepted      bool      `json:"marketing_accepted"`
	AcceptedAt             time.Time `json:"accepted_at"`
}

// Registration is a participant's enrollment record for one event.
type Registration struct {
	ID          string             `json:"id"`
	EventID     string             `json:"event_id"`
	MemberID    string             `json:"member_id,omitempty"`
	Participant Participant        `json:"participant"`
	Attributes  map[string]any     `json:"attributes,omitempty"`
	Consents    Consents           `json:"consents"`
	Status      RegistrationStatus `json:"status"`
	AdminNotes  []string           `json:"admin_notes,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// PaymentStatus is the local status of a checkout attempt.
// Transitions are monotonic: pending -> completed | failed.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is the local record of one checkout attempt. Exactly one of
// RegistrationID and MemberID is set.
type Payment struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id,omitempty"`
	ChargeID       string         `json:"charge_id,omitempty"`
	AmountCents    int64          `json:"amount_cents"`
	Currency       string         `json:"currency"`
	RegistrationID string         `json:"registration_id,omitempty"`
	MemberID       string         `json:"member_id,omitempty"`
	Status         PaymentStatus  `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Purpose tells whether the payment pays for a membership or an event seat.
func (p *Payment) Purpose() PaymentPurpose {
	if p.MemberID != "" && p.RegistrationID == "" {
		return PurposeMembership
	}
	return PurposeRegistration
}

// PaymentPurpose distinguishes what a payment activates.
type PaymentPurpose string

const (
	PurposeRegistration PaymentPurpose = "registration"
	PurposeMembership   PaymentPurpose = "membership"
)

// MembershipStatus is the lifecycle status of a club membership.
type MembershipStatus string

const (
	MembershipPending MembershipStatus = "pending"
	MembershipActive  MembershipStatus = "active"
	MembershipFailed  MembershipStatus = "failed"
)

// Member is a club member. AdminNotes is an append-only audit trail.
type Member struct {
	ID         string           `json:"id"`
	FirstName  string           `json:"first_name"`
	LastName   string           `json:"last_name"`
	Email      string           `json:"email"`
	Status     MembershipStatus `json:"status"`
	ValidFrom  *time.Time       `json:"valid_from,omitempty"`
	ValidUntil *time.Time       `json:"valid_until,omitempty"`
	AdminNotes []string         `json:"admin_notes,omitempty"`
}

// FullName joins first and last name.
func (m Member) FullName() string {
	return fullName(m.FirstName, m.LastName)
}

// EnrollmentRequest is the raw checkout payload for an event seat.
type EnrollmentRequest struct {
	EventID            string         `json:"event_id"`
	MemberID           string         `json:"member_id"`
	FirstName          string         `json:"first_name"`
	LastName           string         `json:"last_name"`
	Email              string         `json:"email"`
	Phone              string         `json:"phone"`
	NationalID         string         `json:"national_id"`
	ShirtSize          string         `json:"shirt_size"`
	Attributes         map[string]any `json:"attributes"`
	Consents           ConsentInput   `json:"consents"`
	WaiverAcceptanceID string         `json:"waiver_acceptance_id"`
}

// ConsentInput carries the consent booleans as sent by the client.
// Pointers distinguish "false" from "missing".
type ConsentInput struct {
	PrivacyAccepted        *bool `json:"privacy_accepted"`
	ChannelSharingAccepted *bool `json:"channel_sharing_accepted"`
	MarketingAccepted      *bool `json:"marketing_accepted"`
}

// Enrollment is a validated, normalized EnrollmentRequest.
type Enrollment struct {
	EventID            string
	MemberID           string
	Participant        Participant
	Attributes         map[string]any
	Consents           Consents
	WaiverAcceptanceID string
}

// MembershipCheckoutRequest starts the payment of an annual membership.
type MembershipCheckoutRequest struct {
	MemberID string `json:"member_id" binding:"required"`
}

// PendingCheckout is what the store persists before a session exists.
type PendingCheckout struct {
	Registration *Registration
	Payment      *Payment
}

// CheckoutSession is what the client needs to continue at the gateway.
type CheckoutSession struct {
	PaymentID   string `json:"paymentId"`
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

// SessionRequest is what the gateway adapter needs to mint a hosted session.
type SessionRequest struct {
	AmountCents int64
	Currency    string
	Title       string
	Description string
	PayerEmail  string
	// ExternalReference correlates the gateway charge with the local payment.
	ExternalReference string
	Metadata          map[string]string
}

// Session is a hosted checkout session minted by the gateway.
type Session struct {
	ID          string
	RedirectURL string
}

// ChargeInfo is the gateway's view of a charge, fetched during webhook ingress.
type ChargeInfo struct {
	ChargeID          string
	Status            string
	StatusDetail      string
	ExternalReference string
	AmountCents       int64
	Currency          string
	PayerEmail        string
	ApprovedAt        time.Time
}

// OutcomeKind is the external payment result being reconciled.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "payment.succeeded"
	OutcomeFailed    OutcomeKind = "payment.failed"
)

// PaymentOutcome is a verified external notification ready for reconciliation.
// SessionID takes precedence over ExternalReference when both are set.
type PaymentOutcome struct {
	EventID           string
	Kind              OutcomeKind
	SessionID         string
	ExternalReference string
	ChargeID          string
	Detail            string
}

// Settlement is the terminal state change applied to a payment and its subject.
type Settlement struct {
	PaymentID  string
	Status     PaymentStatus
	ChargeID   string
	ValidFrom  time.Time
	ValidUntil time.Time
	Note       string
}

// Recipient is who gets told about a settled payment.
type Recipient struct {
	Purpose    PaymentPurpose
	SubjectID  string
	Name       string
	Email      string
	EventTitle string
	ValidUntil *time.Time
}

// Confirmation is handed to the notifier after a settlement.
type Confirmation struct {
	PaymentID   string
	Status      PaymentStatus
	AmountCents int64
	Currency    string
	Recipient   Recipient
	SettledAt   time.Time
}

// ReconcileResult describes what a reconciliation did.
type ReconcileResult string

const (
	ResultApplied   ReconcileResult = "applied"
	ResultDuplicate ReconcileResult = "duplicate"
	ResultIgnored   ReconcileResult = "ignored"
	ResultNotFound  ReconcileResult = "not_found"
)

// WebhookNotification represents the IPN notification from Mercado Pago.
type WebhookNotification struct {
	ID          int64  `json:"id"`
	LiveMode    bool   `json:"live_mode"`
	Type        string `json:"type"`
	DateCreated string `json:"date_created"`
	UserID      int64  `json:"user_id,omitempty"`
	APIVersion  string `json:"api_version"`
	Action      string `json:"action"`
	Data        struct {
		ID string `json:"id"`
	} `json:"data"`
}
