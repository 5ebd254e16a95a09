// Package service implements the core business logic.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
	"github.com/fitstack/fitstack-enrollments/internal/core/ports"
)

// EnrollmentOptions configures the checkout flows.
type EnrollmentOptions struct {
	MembershipFeeCents int64
	MembershipCurrency string
	// SessionTimeout bounds the call that mints the gateway session.
	SessionTimeout time.Duration
}

// EnrollmentService orchestrates checkouts: validation, capacity, local
// persistence and gateway session creation.
type EnrollmentService struct {
	store     ports.CheckoutStore
	gateway   ports.PaymentGateway
	validator *RequestValidator
	opts      EnrollmentOptions

	now   func() time.Time
	newID func() string
}

// NewEnrollmentService creates a new enrollment service.
func NewEnrollmentService(
	store ports.CheckoutStore,
	gateway ports.PaymentGateway,
	validator *RequestValidator,
	opts EnrollmentOptions,
) *EnrollmentService {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = 15 * time.Second
	}
	return &EnrollmentService{
		store:     store,
		gateway:   gateway,
		validator: validator,
		opts:      opts,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// CheckCapacity is the read-then-decide guard. It rejects the obvious cases;
// the seat itself is reserved atomically by the store.
func (s *EnrollmentService) CheckCapacity(ctx context.Context, eventID string) (*domain.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewServiceError(domain.ErrNotFound,
				fmt.Sprintf("event '%s' not found", eventID), "EVENT_NOT_FOUND")
		}
		return nil, domain.NewServiceError(domain.ErrInternal,
			"failed to load event", "INTERNAL_ERROR")
	}

	if event.Status != domain.EventStatusPublished {
		return nil, domain.NewServiceError(domain.ErrEventUnavailable,
			fmt.Sprintf("event '%s' is %s", eventID, event.Status), "EVENT_UNAVAILABLE")
	}
	// Payments must carry a positive amount.
	if event.PriceCents <= 0 {
		return nil, domain.NewServiceError(domain.ErrEventUnavailable,
			fmt.Sprintf("event '%s' has no price", eventID), "EVENT_UNAVAILABLE")
	}
	if event.IsFull() {
		return nil, domain.NewServiceError(domain.ErrCapacityExceeded,
			fmt.Sprintf("event '%s' is full", eventID), "CAPACITY_EXCEEDED")
	}
	return event, nil
}

// Enroll validates the request, persists a pending registration and payment,
// and mints the hosted payment session.
func (s *EnrollmentService) Enroll(ctx context.Context, req domain.EnrollmentRequest) (*domain.CheckoutSession, error) {
	now := s.now().UTC()

	enrollment, err := s.validator.Validate(req, now)
	if err != nil {
		return nil, err
	}

	event, err := s.CheckCapacity(ctx, enrollment.EventID)
	if err != nil {
		return nil, err
	}

	reg := &domain.Registration{
		ID:          s.newID(),
		EventID:     event.ID,
		MemberID:    enrollment.MemberID,
		Participant: enrollment.Participant,
		Attributes:  enrollment.Attributes,
		Consents:    enrollment.Consents,
		Status:      domain.RegistrationPending,
		CreatedAt:   now,
	}
	metadata := map[string]any{
		"registration_id": reg.ID,
		"event_id":        event.ID,
	}
	if reg.MemberID != "" {
		metadata["member_id"] = reg.MemberID
	}
	payment := &domain.Payment{
		ID:             s.newID(),
		AmountCents:    event.PriceCents,
		Currency:       event.Currency,
		RegistrationID: reg.ID,
		Status:         domain.PaymentPending,
		Metadata:       metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	checkout := domain.PendingCheckout{Registration: reg, Payment: payment}
	if err := s.store.CreateRegistrationCheckout(ctx, checkout, enrollment.WaiverAcceptanceID); err != nil {
		return nil, mapCheckoutStoreError(err, event.ID)
	}

	session, err := s.mintSession(ctx, payment, domain.SessionRequest{
		AmountCents:       payment.AmountCents,
		Currency:          payment.Currency,
		Title:             event.Title,
		Description:       fmt.Sprintf("Registration for %s - %s", event.Title, reg.Participant.FullName()),
		PayerEmail:        reg.Participant.Email,
		ExternalReference: payment.ID,
		Metadata:          stringMetadata(metadata),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Created checkout session %s for registration %s (event %s), amount: %d %s",
		session.SessionID, reg.ID, event.ID, payment.AmountCents, payment.Currency)

	return session, nil
}

// CheckoutMembership starts the payment of an annual membership.
func (s *EnrollmentService) CheckoutMembership(ctx context.Context, req domain.MembershipCheckoutRequest) (*domain.CheckoutSession, error) {
	if req.MemberID == "" {
		return nil, domain.NewValidationError("member_id", "is required")
	}
	if s.opts.MembershipFeeCents <= 0 || s.opts.MembershipCurrency == "" {
		return nil, domain.NewServiceError(domain.ErrInternal,
			"membership fee is not configured", "MEMBERSHIP_NOT_CONFIGURED")
	}

	member, err := s.store.GetMember(ctx, req.MemberID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewServiceError(domain.ErrNotFound,
				fmt.Sprintf("member '%s' not found", req.MemberID), "MEMBER_NOT_FOUND")
		}
		return nil, domain.NewServiceError(domain.ErrInternal,
			"failed to load member", "INTERNAL_ERROR")
	}

	now := s.now().UTC()
	if member.Status == domain.MembershipActive && member.ValidUntil != nil && member.ValidUntil.After(now) {
		return nil, domain.NewServiceError(domain.ErrMembershipActive,
			fmt.Sprintf("membership is active until %s", member.ValidUntil.Format("2006-01-02")), "MEMBERSHIP_ACTIVE")
	}

	payment := &domain.Payment{
		ID:          s.newID(),
		AmountCents: s.opts.MembershipFeeCents,
		Currency:    s.opts.MembershipCurrency,
		MemberID:    member.ID,
		Status:      domain.PaymentPending,
		Metadata:    map[string]any{"member_id": member.ID, "purpose": string(domain.PurposeMembership)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateMembershipCheckout(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NewServiceError(domain.ErrNotFound,
				fmt.Sprintf("member '%s' not found", req.MemberID), "MEMBER_NOT_FOUND")
		}
		if errors.Is(err, domain.ErrMembershipActive) {
			return nil, domain.NewServiceError(domain.ErrMembershipActive,
				"membership became active concurrently", "MEMBERSHIP_ACTIVE")
		}
		log.Printf("Failed to persist membership checkout for member %s: %v", member.ID, err)
		return nil, domain.NewServiceError(domain.ErrInternal,
			"failed to persist checkout", "INTERNAL_ERROR")
	}

	session, err := s.mintSession(ctx, payment, domain.SessionRequest{
		AmountCents:       payment.AmountCents,
		Currency:          payment.Currency,
		Title:             "Annual membership",
		Description:       "Annual membership - " + member.FullName(),
		PayerEmail:        member.Email,
		ExternalReference: payment.ID,
		Metadata:          stringMetadata(payment.Metadata),
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Created membership checkout session %s for member %s, amount: %d %s",
		session.SessionID, member.ID, payment.AmountCents, payment.Currency)

	return session, nil
}

// mintSession calls the gateway outside any local transaction and attaches
// the session id afterwards. Failure at either step abandons the checkout.
func (s *EnrollmentService) mintSession(ctx context.Context, payment *domain.Payment, req domain.SessionRequest) (*domain.CheckoutSession, error) {
	sessionCtx, cancel := context.WithTimeout(ctx, s.opts.SessionTimeout)
	session, err := s.gateway.CreateSession(sessionCtx, req)
	cancel()
	if err != nil {
		log.Printf("Failed to create session for payment %s: %v", payment.ID, err)
		s.abandon(ctx, payment.ID, "gateway session creation failed: "+err.Error())
		return nil, domain.NewServiceError(domain.ErrPaymentGatewayError,
			"failed to create payment session", "GATEWAY_ERROR")
	}

	if err := s.store.AttachSession(ctx, payment.ID, session.ID); err != nil {
		log.Printf("Failed to attach session %s to payment %s: %v", session.ID, payment.ID, err)
		s.abandon(ctx, payment.ID, "could not attach session "+session.ID+": "+err.Error())
		return nil, domain.NewServiceError(domain.ErrInternal,
			"failed to persist payment session", "INTERNAL_ERROR")
	}
	payment.SessionID = session.ID

	return &domain.CheckoutSession{
		PaymentID:   payment.ID,
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
	}, nil
}

// abandon runs on a context detached from the request so a client timeout
// does not leave the seat reserved.
func (s *EnrollmentService) abandon(ctx context.Context, paymentID, note string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.store.AbandonCheckout(ctx, paymentID, note); err != nil {
		log.Printf("ALERT: failed to abandon checkout %s: %v", paymentID, err)
	}
}

func mapCheckoutStoreError(err error, eventID string) error {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		return vErr
	case errors.Is(err, domain.ErrDuplicateRegistration):
		return domain.NewServiceError(domain.ErrDuplicateRegistration,
			"participant is already registered for this event", "DUPLICATE_REGISTRATION")
	case errors.Is(err, domain.ErrCapacityExceeded):
		return domain.NewServiceError(domain.ErrCapacityExceeded,
			fmt.Sprintf("event '%s' is full", eventID), "CAPACITY_EXCEEDED")
	case errors.Is(err, domain.ErrNotFound):
		return domain.NewServiceError(domain.ErrNotFound,
			fmt.Sprintf("event '%s' not found", eventID), "EVENT_NOT_FOUND")
	case errors.Is(err, domain.ErrEventUnavailable):
		return domain.NewServiceError(domain.ErrEventUnavailable,
			fmt.Sprintf("event '%s' is not open for enrollment", eventID), "EVENT_UNAVAILABLE")
	default:
		log.Printf("Failed to persist checkout for event %s: %v", eventID, err)
		return domain.NewServiceError(domain.ErrInternal,
			"failed to persist registration", "INTERNAL_ERROR")
	}
}

func stringMetadata(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = fmt.Sprint(v)
	}
	return out
}
