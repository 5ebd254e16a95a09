package service

import (
	"context"
	"errors"
	"log"
	"strconv"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
	"github.com/fitstack/fitstack-enrollments/internal/core/ports"
)

// Reconciliation is what the webhook ingress hands verified outcomes to.
type Reconciliation interface {
	Reconcile(ctx context.Context, outcome domain.PaymentOutcome) (domain.ReconcileResult, error)
}

// WebhookService verifies, deduplicates and dispatches Mercado Pago notifications.
type WebhookService struct {
	gateway    ports.PaymentGateway
	validator  ports.WebhookValidator
	ledger     ports.EventLedger
	reconciler Reconciliation
}

// NewWebhookService creates a new webhook ingress.
func NewWebhookService(
	gateway ports.PaymentGateway,
	validator ports.WebhookValidator,
	ledger ports.EventLedger,
	reconciler Reconciliation,
) *WebhookService {
	return &WebhookService{
		gateway:    gateway,
		validator:  validator,
		ledger:     ledger,
		reconciler: reconciler,
	}
}

// VerifySignature checks x-signature against the signed data id. It needs
// nothing from the body, so callers can reject a request before decoding it.
func (s *WebhookService) VerifySignature(xSignature, xRequestID, dataID string) error {
	if err := s.validator.ValidateSignature(xSignature, xRequestID, dataID); err != nil {
		log.Printf("Webhook signature validation failed (request %s): %v", xRequestID, err)
		return domain.NewServiceError(domain.ErrWebhookValidationFailed,
			"invalid webhook signature", "INVALID_SIGNATURE")
	}
	return nil
}

// ProcessWebhook handles one notification delivery.
//
// A nil error means the delivery can be acknowledged. Errors wrapping
// domain.ErrWebhookValidationFailed must be rejected without processing;
// domain.ErrEntityNotFound is final and acknowledged; anything else should
// make the provider redeliver.
func (s *WebhookService) ProcessWebhook(
	ctx context.Context,
	notification domain.WebhookNotification,
	xSignature string,
	xRequestID string,
) (domain.ReconcileResult, error) {
	// Step 1: Validate webhook signature
	dataID := notification.Data.ID
	if err := s.VerifySignature(xSignature, xRequestID, dataID); err != nil {
		return "", err
	}

	// Step 2: Skip deliveries we already finished
	eventID := eventKey(notification, xRequestID)
	if seen, err := s.ledger.Seen(ctx, eventID); err != nil {
		log.Printf("Webhook ledger lookup failed for %s, processing anyway: %v", eventID, err)
	} else if seen {
		log.Printf("Webhook %s already processed", eventID)
		return domain.ResultDuplicate, nil
	}

	// Step 3: Only process payment notifications
	if notification.Type != "payment" || dataID == "" {
		log.Printf("Ignoring webhook type: %s (event %s)", notification.Type, eventID)
		s.record(ctx, eventID, notification.Type, domain.ResultIgnored)
		return domain.ResultIgnored, nil
	}

	// Step 4: Get charge details from Mercado Pago
	charge, err := s.gateway.GetCharge(ctx, dataID)
	if errors.Is(err, domain.ErrValidation) {
		log.Printf("Ignoring webhook with malformed charge id %q (event %s)", dataID, eventID)
		s.record(ctx, eventID, notification.Type, domain.ResultIgnored)
		return domain.ResultIgnored, nil
	}
	if err != nil {
		log.Printf("Failed to get charge %s: %v", dataID, err)
		return "", domain.NewServiceError(domain.ErrPaymentGatewayError,
			"failed to get charge info", "WEBHOOK_GATEWAY_ERROR")
	}

	// Step 5: Map the charge status onto an outcome
	kind := mapStatusToOutcome(charge.Status)
	if kind == "" {
		log.Printf("Ignoring charge %s with status %s (event %s)", charge.ChargeID, charge.Status, eventID)
		s.record(ctx, eventID, notification.Type, domain.ResultIgnored)
		return domain.ResultIgnored, nil
	}

	// Step 6: Reconcile
	result, err := s.reconciler.Reconcile(ctx, domain.PaymentOutcome{
		EventID:           eventID,
		Kind:              kind,
		ExternalReference: charge.ExternalReference,
		ChargeID:          charge.ChargeID,
		Detail:            charge.StatusDetail,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEntityNotFound) {
			s.record(ctx, eventID, string(kind), domain.ResultNotFound)
		}
		return result, err
	}

	s.record(ctx, eventID, string(kind), result)
	log.Printf("Webhook processed: event %s, charge %s, status %s, result %s",
		eventID, charge.ChargeID, charge.Status, result)

	return result, nil
}

func (s *WebhookService) record(ctx context.Context, eventID, eventType string, result domain.ReconcileResult) {
	if err := s.ledger.Record(ctx, eventID, eventType, result); err != nil {
		log.Printf("Failed to record webhook %s: %v", eventID, err)
	}
}

// eventKey identifies a delivery. Redeliveries of the same notification keep its id.
func eventKey(n domain.WebhookNotification, xRequestID string) string {
	if n.ID != 0 {
		return "mp:" + strconv.FormatInt(n.ID, 10)
	}
	if xRequestID != "" {
		return "mp-request:" + xRequestID
	}
	return "mp-data:" + n.Type + ":" + n.Action + ":" + n.Data.ID
}

// mapStatusToOutcome maps MP payment status to an outcome. Non-terminal
// statuses map to "".
func mapStatusToOutcome(status string) domain.OutcomeKind {
	switch status {
	case "approved":
		return domain.OutcomeSucceeded
	case "rejected", "cancelled", "refunded", "charged_back":
		return domain.OutcomeFailed
	default:
		return ""
	}
}
