package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
)

// Store implements ports.CheckoutStore and ports.ReconciliationStore.
type Store struct {
	db *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// GetEvent returns a single event or domain.ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	var e domain.Event
	err := s.db.QueryRow(ctx,
		`SELECT id, title, max_participants, current_participants, price_cents, currency, status
		 FROM events WHERE id = $1`,
		eventID,
	).Scan(&e.ID, &e.Title, &e.MaxParticipants, &e.CurrentParticipants, &e.PriceCents, &e.Currency, &e.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get event", err)
	}
	return &e, nil
}

// GetMember returns a single member or domain.ErrNotFound.
func (s *Store) GetMember(ctx context.Context, memberID string) (*domain.Member, error) {
	var m domain.Member
	err := s.db.QueryRow(ctx,
		`SELECT id, first_name, last_name, email, status, valid_from, valid_until, admin_notes
		 FROM members WHERE id = $1`,
		memberID,
	).Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email, &m.Status, &m.ValidFrom, &m.ValidUntil, &m.AdminNotes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get member", err)
	}
	return &m, nil
}

// CreateRegistrationCheckout reserves a seat and persists the pending
// registration and payment in one transaction.
//
// The seat is taken with a conditional increment, so two transactions racing
// for the last seat cannot both succeed: the loser matches zero rows.
func (s *Store) CreateRegistrationCheckout(ctx context.Context, checkout domain.PendingCheckout, waiverAcceptanceID string) (err error) {
	reg, p := checkout.Registration, checkout.Payment

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify("begin checkout", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE events
		 SET current_participants = current_participants + 1, updated_at = now()
		 WHERE id = $1 AND status = 'published' AND current_participants < max_participants`,
		reg.EventID,
	)
	if err != nil {
		return classify("reserve seat", err)
	}
	if tag.RowsAffected() == 0 {
		return whyNoSeat(ctx, tx, reg.EventID)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (
			id, event_id, member_id, first_name, last_name, email, phone, national_id,
			attributes, privacy_accepted, channel_sharing_accepted, marketing_accepted,
			consents_accepted_at, status, created_at
		 ) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		reg.ID, reg.EventID, reg.MemberID,
		reg.Participant.FirstName, reg.Participant.LastName, reg.Participant.Email,
		reg.Participant.Phone, reg.Participant.NationalID,
		jsonObject(reg.Attributes),
		reg.Consents.PrivacyAccepted, reg.Consents.ChannelSharingAccepted, reg.Consents.MarketingAccepted,
		reg.Consents.AcceptedAt, reg.Status, reg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRegistration
		}
		return classify("insert registration", err)
	}

	if waiverAcceptanceID != "" {
		tag, err = tx.Exec(ctx,
			`UPDATE waiver_acceptances SET registration_id = $1
			 WHERE id = $2 AND event_id = $3 AND registration_id IS NULL`,
			reg.ID, waiverAcceptanceID, reg.EventID,
		)
		if err != nil {
			return classify("link waiver", err)
		}
		if tag.RowsAffected() == 0 {
			err = domain.NewValidationError("waiver_acceptance_id", "unknown or already used")
			return err
		}
	}

	if err = insertPayment(ctx, tx, p); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return classify("commit checkout", err)
	}
	return nil
}

// whyNoSeat explains a reservation that matched no row.
func whyNoSeat(ctx context.Context, tx pgx.Tx, eventID string) error {
	var status domain.EventStatus
	err := tx.QueryRow(ctx, `SELECT status FROM events WHERE id = $1`, eventID).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrNotFound
	case err != nil:
		return classify("inspect event", err)
	case status != domain.EventStatusPublished:
		return domain.ErrEventUnavailable
	default:
		return domain.ErrCapacityExceeded
	}
}

// CreateMembershipCheckout marks the member pending and inserts the payment.
func (s *Store) CreateMembershipCheckout(ctx context.Context, p *domain.Payment) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify("begin membership checkout", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	tag, err := tx.Exec(ctx,
		`UPDATE members SET status = 'pending', updated_at = now()
		 WHERE id = $1 AND NOT (status = 'active' AND valid_until > $2)`,
		p.MemberID, p.CreatedAt,
	)
	if err != nil {
		return classify("mark member pending", err)
	}
	if tag.RowsAffected() == 0 {
		var status domain.MembershipStatus
		qerr := tx.QueryRow(ctx, `SELECT status FROM members WHERE id = $1`, p.MemberID).Scan(&status)
		if errors.Is(qerr, pgx.ErrNoRows) {
			err = domain.ErrNotFound
			return err
		}
		err = domain.ErrMembershipActive
		return err
	}

	if err = insertPayment(ctx, tx, p); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return classify("commit membership checkout", err)
	}
	return nil
}

func insertPayment(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO payments (
			id, amount_cents, currency, registration_id, member_id, status, metadata, created_at, updated_at
		 ) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9)`,
		p.ID, p.AmountCents, p.Currency, p.RegistrationID, p.MemberID, p.Status,
		jsonObject(p.Metadata), p.CreatedAt, p.UpdatedAt,
	)
	return classify("insert payment", err)
}

// AttachSession records the gateway session on a pending payment.
func (s *Store) AttachSession(ctx context.Context, paymentID, sessionID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE payments SET session_id = $2, updated_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		paymentID, sessionID,
	)
	if err != nil {
		return classify("attach session", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AbandonCheckout fails a pending payment whose session could not be
// minted, cancelling its registration and releasing the seat. Calling it on
// a payment that already left pending is a no-op.
func (s *Store) AbandonCheckout(ctx context.Context, paymentID, note string) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify("begin abandon", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var registrationID, memberID string
	err = tx.QueryRow(ctx,
		`UPDATE payments SET status = 'failed', updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING COALESCE(registration_id, ''), COALESCE(member_id, '')`,
		paymentID,
	).Scan(&registrationID, &memberID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		_ = tx.Rollback(ctx)
		return nil
	}
	if err != nil {
		return classify("fail payment", err)
	}

	if registrationID != "" {
		if err = cancelRegistration(ctx, tx, registrationID, note); err != nil {
			return err
		}
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE members SET status = 'failed', admin_notes = array_append(admin_notes, $2), updated_at = now()
			 WHERE id = $1 AND status = 'pending'`,
			memberID, note,
		)
		if err != nil {
			return classify("fail membership", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return classify("commit abandon", err)
	}
	return nil
}

// cancelRegistration cancels a pending registration and gives its seat back.
func cancelRegistration(ctx context.Context, tx pgx.Tx, registrationID, note string) error {
	var eventID string
	err := tx.QueryRow(ctx,
		`UPDATE registrations
		 SET status = 'cancelled', admin_notes = array_append(admin_notes, $2), updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING event_id`,
		registrationID, note,
	).Scan(&eventID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return classify("cancel registration", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE events
		 SET current_participants = GREATEST(current_participants - 1, 0), updated_at = now()
		 WHERE id = $1`,
		eventID,
	)
	return classify("release seat", err)
}

const paymentColumns = `id, COALESCE(session_id, ''), COALESCE(charge_id, ''), amount_cents, currency,
	COALESCE(registration_id, ''), COALESCE(member_id, ''), status, metadata, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.SessionID, &p.ChargeID, &p.AmountCents, &p.Currency,
		&p.RegistrationID, &p.MemberID, &p.Status, &p.Metadata, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get payment", err)
	}
	return &p, nil
}

// PaymentBySessionID returns the payment a session was minted for.
func (s *Store) PaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error) {
	return scanPayment(s.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE session_id = $1`, sessionID))
}

// PaymentByID returns a payment by its local id.
func (s *Store) PaymentByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return scanPayment(s.db.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, paymentID))
}

// Settle applies a terminal payment status and the matching subject
// transition in one transaction. The pending guard makes concurrent
// settlements of the same payment race to a single winner.
func (s *Store) Settle(ctx context.Context, st domain.Settlement) (rec *domain.Recipient, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, classify("begin settle", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var registrationID, memberID string
	err = tx.QueryRow(ctx,
		`UPDATE payments SET status = $2, charge_id = NULLIF($3, ''), updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING COALESCE(registration_id, ''), COALESCE(member_id, '')`,
		st.PaymentID, st.Status, st.ChargeID,
	).Scan(&registrationID, &memberID)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if qerr := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, st.PaymentID).Scan(&exists); qerr != nil {
			return nil, classify("inspect payment", qerr)
		}
		if !exists {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrPaymentSettled
	}
	if err != nil {
		return nil, classify("settle payment", err)
	}

	if registrationID != "" {
		rec, err = settleRegistration(ctx, tx, registrationID, st)
	} else {
		rec, err = settleMembership(ctx, tx, memberID, st)
	}
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, classify("commit settle", err)
	}
	return rec, nil
}

func settleRegistration(ctx context.Context, tx pgx.Tx, registrationID string, st domain.Settlement) (*domain.Recipient, error) {
	rec := &domain.Recipient{Purpose: domain.PurposeRegistration, SubjectID: registrationID}

	if st.Status != domain.PaymentCompleted {
		if err := cancelRegistration(ctx, tx, registrationID, st.Note); err != nil {
			return nil, err
		}
	} else {
		_, err := tx.Exec(ctx,
			`UPDATE registrations
			 SET status = 'confirmed', admin_notes = array_append(admin_notes, $2), updated_at = now()
			 WHERE id = $1`,
			registrationID, st.Note,
		)
		if err != nil {
			return nil, classify("confirm registration", err)
		}
	}

	var first, last string
	err := tx.QueryRow(ctx,
		`SELECT r.first_name, r.last_name, r.email, e.title
		 FROM registrations r JOIN events e ON e.id = r.event_id
		 WHERE r.id = $1`,
		registrationID,
	).Scan(&first, &last, &rec.Email, &rec.EventTitle)
	if err != nil {
		return nil, classify("load recipient", err)
	}
	rec.Name = domain.Participant{FirstName: first, LastName: last}.FullName()
	return rec, nil
}

func settleMembership(ctx context.Context, tx pgx.Tx, memberID string, st domain.Settlement) (*domain.Recipient, error) {
	rec := &domain.Recipient{Purpose: domain.PurposeMembership, SubjectID: memberID}

	var m domain.Member
	var err error
	if st.Status == domain.PaymentCompleted {
		err = tx.QueryRow(ctx,
			`UPDATE members
			 SET status = 'active', valid_from = $2, valid_until = $3,
			     admin_notes = array_append(admin_notes, $4), updated_at = now()
			 WHERE id = $1
			 RETURNING first_name, last_name, email, valid_until`,
			memberID, st.ValidFrom, st.ValidUntil, st.Note,
		).Scan(&m.FirstName, &m.LastName, &rec.Email, &rec.ValidUntil)
	} else {
		err = tx.QueryRow(ctx,
			`UPDATE members
			 SET status = CASE WHEN status = 'active' THEN status ELSE 'failed' END,
			     admin_notes = array_append(admin_notes, $2), updated_at = now()
			 WHERE id = $1
			 RETURNING first_name, last_name, email`,
			memberID, st.Note,
		).Scan(&m.FirstName, &m.LastName, &rec.Email)
	}
	if err != nil {
		return nil, classify("settle membership", err)
	}
	rec.Name = m.FullName()
	return rec, nil
}

// AppendNote appends to the audit trail of the payment's registration or member.
func (s *Store) AppendNote(ctx context.Context, paymentID, note string) error {
	p, err := s.PaymentByID(ctx, paymentID)
	if err != nil {
		return err
	}

	if p.RegistrationID != "" {
		_, err = s.db.Exec(ctx,
			`UPDATE registrations SET admin_notes = array_append(admin_notes, $2), updated_at = now() WHERE id = $1`,
			p.RegistrationID, note)
	} else {
		_, err = s.db.Exec(ctx,
			`UPDATE members SET admin_notes = array_append(admin_notes, $2), updated_at = now() WHERE id = $1`,
			p.MemberID, note)
	}
	return classify("append note", err)
}

func jsonObject(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
