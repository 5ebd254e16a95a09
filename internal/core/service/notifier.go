package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
	"github.com/fitstack/fitstack-enrollments/internal/core/ports"
)

// AuditTrail appends notes to the audit trail of a payment's subject.
type AuditTrail interface {
	AppendNote(ctx context.Context, paymentID, note string) error
}

// BestEffortNotifier dispatches confirmations after the authoritative state
// change. Its failures are logged and written to the audit trail, never returned.
type BestEffortNotifier struct {
	notifier ports.ConfirmationNotifier
	audit    AuditTrail
	timeout  time.Duration
}

// NewBestEffortNotifier creates a BestEffortNotifier. A nil notifier disables dispatch.
func NewBestEffortNotifier(notifier ports.ConfirmationNotifier, audit AuditTrail, timeout time.Duration) *BestEffortNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BestEffortNotifier{notifier: notifier, audit: audit, timeout: timeout}
}

// Dispatch sends c once. It runs on a context detached from the caller's
// cancellation but bounded by the notifier timeout.
func (n *BestEffortNotifier) Dispatch(ctx context.Context, c domain.Confirmation) {
	if n == nil || n.notifier == nil {
		return
	}

	base := context.WithoutCancel(ctx)
	sendCtx, cancel := context.WithTimeout(base, n.timeout)
	defer cancel()

	err := n.send(sendCtx, c)
	if err == nil {
		return
	}

	log.Printf("Failed to notify %s for payment %s: %v", c.Recipient.Email, c.PaymentID, err)
	note := fmt.Sprintf("[%s] confirmation for payment %s not delivered: %v",
		c.SettledAt.Format(time.RFC3339), c.PaymentID, err)
	if n.audit == nil {
		return
	}
	// The send deadline may already be spent; the note gets its own.
	auditCtx, auditCancel := context.WithTimeout(base, n.timeout)
	defer auditCancel()
	if aerr := n.audit.AppendNote(auditCtx, c.PaymentID, note); aerr != nil {
		log.Printf("Failed to record notification failure for payment %s: %v", c.PaymentID, aerr)
	}
}

func (n *BestEffortNotifier) send(ctx context.Context, c domain.Confirmation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewServiceError(domain.ErrNotification, fmt.Sprintf("notifier panic: %v", r), "NOTIFY_PANIC")
		}
	}()
	return n.notifier.NotifyConfirmation(ctx, c)
}
