package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
)

// blockingNotifier waits until its context is done.
type blockingNotifier struct{}

func (blockingNotifier) NotifyConfirmation(ctx context.Context, c domain.Confirmation) error {
	<-ctx.Done()
	return ctx.Err()
}

// recordingAudit keeps notes and fails when handed a finished context.
type recordingAudit struct {
	mu    sync.Mutex
	notes []string
	err   error
}

func (a *recordingAudit) AppendNote(ctx context.Context, paymentID, note string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := ctx.Err(); err != nil {
		a.err = err
		return err
	}
	a.notes = append(a.notes, note)
	return nil
}

func TestDispatch_TimedOutNotifierStillRecordsNote(t *testing.T) {
	audit := &recordingAudit{}
	n := NewBestEffortNotifier(blockingNotifier{}, audit, 20*time.Millisecond)

	n.Dispatch(context.Background(), domain.Confirmation{
		PaymentID: "P1",
		Recipient: domain.Recipient{Email: "lucia@example.com"},
		SettledAt: fixedNow,
	})

	if audit.err != nil {
		t.Fatalf("audit note written on an expired context: %v", audit.err)
	}
	if len(audit.notes) != 1 || !strings.Contains(audit.notes[0], "deadline exceeded") {
		t.Errorf("expected one note naming the timeout, got %v", audit.notes)
	}
}

func TestDispatch_CallerCancellationDoesNotDropNote(t *testing.T) {
	audit := &recordingAudit{}
	n := NewBestEffortNotifier(&MockNotifier{Panic: true}, audit, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Dispatch(ctx, domain.Confirmation{PaymentID: "P1", SettledAt: fixedNow})

	if audit.err != nil || len(audit.notes) != 1 {
		t.Errorf("expected one note, got %v (err %v)", audit.notes, audit.err)
	}
}
