package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
)

// Ledger implements ports.EventLedger on the processed_webhook_events table.
type Ledger struct {
	db *pgxpool.Pool
}

// NewLedger constructs a Ledger.
func NewLedger(db *pgxpool.Pool) *Ledger {
	return &Ledger{db: db}
}

// Seen reports whether the event id was recorded before.
func (l *Ledger) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := l.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_webhook_events WHERE event_id = $1)`,
		eventID,
	).Scan(&seen)
	if err != nil {
		return false, classify("ledger lookup", err)
	}
	return seen, nil
}

// Record stores the outcome of an event. The first outcome recorded wins.
func (l *Ledger) Record(ctx context.Context, eventID, eventType string, result domain.ReconcileResult) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO processed_webhook_events (event_id, event_type, outcome)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, eventType, string(result),
	)
	return classify("ledger record", err)
}
