package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
	"github.com/fitstack/fitstack-enrollments/internal/core/ports"
	"github.com/fitstack/fitstack-enrollments/internal/retry"
)

// ReconcilerOptions configures the reconciliation engine.
type ReconcilerOptions struct {
	Retry retry.Policy
	// Timeout bounds the whole settlement loop, sleeps included.
	Timeout time.Duration
	// MembershipMonths is the validity of an activated membership.
	MembershipMonths int
}

// Reconciler applies verified payment outcomes to local state. It is the
// only writer of terminal payment, registration and membership status.
type Reconciler struct {
	store    ports.ReconciliationStore
	notifier *BestEffortNotifier
	opts     ReconcilerOptions

	now func() time.Time
}

// NewReconciler creates a new reconciliation engine.
func NewReconciler(store ports.ReconciliationStore, notifier *BestEffortNotifier, opts ReconcilerOptions) *Reconciler {
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MembershipMonths <= 0 {
		opts.MembershipMonths = 12
	}
	return &Reconciler{
		store:    store,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// Reconcile applies one outcome. It is safe to call any number of times
// with the same outcome: only the first call that finds the payment pending
// changes state and notifies.
//
// Errors wrapping domain.ErrEntityNotFound are final and should be
// acknowledged; errors wrapping domain.ErrTransientStore should be redelivered.
func (r *Reconciler) Reconcile(ctx context.Context, outcome domain.PaymentOutcome) (domain.ReconcileResult, error) {
	var status domain.PaymentStatus
	switch outcome.Kind {
	case domain.OutcomeSucceeded:
		status = domain.PaymentCompleted
	case domain.OutcomeFailed:
		status = domain.PaymentFailed
	default:
		return domain.ResultIgnored, nil
	}

	// Step 1: find the local payment
	payment, err := r.lookup(ctx, outcome)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Printf("ALERT: no local payment for session=%q reference=%q (event %s)",
				outcome.SessionID, outcome.ExternalReference, outcome.EventID)
			return domain.ResultNotFound, domain.NewServiceError(domain.ErrEntityNotFound,
				"payment not found", "PAYMENT_NOT_FOUND")
		}
		log.Printf("Failed to load payment for event %s: %v", outcome.EventID, err)
		return "", domain.NewServiceError(domain.ErrTransientStore,
			"failed to load payment", "LOOKUP_FAILED")
	}

	// Step 2: idempotency guard
	if payment.Status != domain.PaymentPending {
		log.Printf("Payment %s already %s, ignoring %s (event %s)",
			payment.ID, payment.Status, outcome.Kind, outcome.EventID)
		return domain.ResultDuplicate, nil
	}

	// Steps 3-4: settle under the retry policy
	now := r.now().UTC()
	settlement := r.settlementFor(payment, status, outcome, now)

	loopCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var recipient *domain.Recipient
	err = r.opts.Retry.Do(loopCtx, func(ctx context.Context, attempt int) error {
		rec, err := r.store.Settle(ctx, settlement)
		if err == nil {
			recipient = rec
			return nil
		}
		if !errors.Is(err, domain.ErrTransientStore) {
			return retry.Stop(err)
		}
		log.Printf("Settle payment %s attempt %d/%d failed: %v",
			payment.ID, attempt, r.opts.Retry.MaxAttempts, err)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrPaymentSettled) {
			log.Printf("Payment %s settled concurrently, ignoring %s", payment.ID, outcome.Kind)
			return domain.ResultDuplicate, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ResultNotFound, domain.NewServiceError(domain.ErrEntityNotFound,
				"payment subject not found", "SUBJECT_NOT_FOUND")
		}
		if !errors.Is(err, domain.ErrTransientStore) && !errors.Is(err, context.DeadlineExceeded) {
			log.Printf("ALERT: settling payment %s failed permanently: %v", payment.ID, err)
			return "", domain.NewServiceError(domain.ErrInternal,
				"settlement failed: "+err.Error(), "SETTLE_FAILED")
		}
		log.Printf("ALERT: giving up on payment %s: %v", payment.ID, err)
		return "", domain.NewServiceError(domain.ErrTransientStore,
			"settlement failed: "+err.Error(), "RECONCILE_EXHAUSTED")
	}

	log.Printf("Payment %s %s (charge %s, %s)", payment.ID, status, outcome.ChargeID, payment.Purpose())

	// Step 5: best-effort notification
	if recipient != nil {
		r.notifier.Dispatch(ctx, domain.Confirmation{
			PaymentID:   payment.ID,
			Status:      status,
			AmountCents: payment.AmountCents,
			Currency:    payment.Currency,
			Recipient:   *recipient,
			SettledAt:   now,
		})
	}

	return domain.ResultApplied, nil
}

func (r *Reconciler) lookup(ctx context.Context, outcome domain.PaymentOutcome) (*domain.Payment, error) {
	switch {
	case outcome.SessionID != "":
		return r.store.PaymentBySessionID(ctx, outcome.SessionID)
	case outcome.ExternalReference != "":
		return r.store.PaymentByID(ctx, outcome.ExternalReference)
	default:
		return nil, domain.ErrNotFound
	}
}

func (r *Reconciler) settlementFor(p *domain.Payment, status domain.PaymentStatus, outcome domain.PaymentOutcome, now time.Time) domain.Settlement {
	s := domain.Settlement{
		PaymentID: p.ID,
		Status:    status,
		ChargeID:  outcome.ChargeID,
	}
	stamp := now.Format(time.RFC3339)

	if status == domain.PaymentCompleted {
		if p.Purpose() == domain.PurposeMembership {
			s.ValidFrom = now
			s.ValidUntil = now.AddDate(0, r.opts.MembershipMonths, 0)
			s.Note = fmt.Sprintf("[%s] payment %s completed (charge %s); membership active until %s",
				stamp, p.ID, outcome.ChargeID, s.ValidUntil.Format("2006-01-02"))
		} else {
			s.Note = fmt.Sprintf("[%s] payment %s completed (charge %s); registration confirmed",
				stamp, p.ID, outcome.ChargeID)
		}
		return s
	}

	s.Note = fmt.Sprintf("[%s] payment %s failed (charge %s)", stamp, p.ID, outcome.ChargeID)
	if outcome.Detail != "" {
		s.Note += ": " + outcome.Detail
	}
	return s
}
