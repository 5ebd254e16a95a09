package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
	"github.com/fitstack/fitstack-enrollments/internal/retry"
)

// memStore is an in-memory CheckoutStore and ReconciliationStore. Each
// method holds the lock for its whole body, which mirrors one transaction.
type memStore struct {
	mu            sync.Mutex
	events        map[string]*domain.Event
	members       map[string]*domain.Member
	registrations map[string]*domain.Registration
	payments      map[string]*domain.Payment
	waivers       map[string]string

	attachErr error

	// settleErr is returned by the first settleFailures calls to Settle
	// (every call when settleFailures is 0).
	settleErr      error
	settleFailures int
	settleCalls    int
	appendErr      error
}

func newMemStore() *memStore {
	return &memStore{
		events:        map[string]*domain.Event{},
		members:       map[string]*domain.Member{},
		registrations: map[string]*domain.Registration{},
		payments:      map[string]*domain.Payment{},
		waivers:       map[string]string{},
	}
}

func (m *memStore) addEvent(e domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = &e
}

func (m *memStore) addMember(mem domain.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mem.ID] = &mem
}

func (m *memStore) addPayment(p domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = &p
}

func (m *memStore) addRegistration(r domain.Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations[r.ID] = &r
}

func (m *memStore) event(id string) domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.events[id]
}

func (m *memStore) payment(id string) domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.payments[id]
}

func (m *memStore) registration(id string) domain.Registration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.registrations[id]
}

func (m *memStore) member(id string) domain.Member {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.members[id]
}

func (m *memStore) countRegistrations(eventID string, status domain.RegistrationStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.registrations {
		if r.EventID == eventID && r.Status == status {
			n++
		}
	}
	return n
}

func (m *memStore) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) GetMember(ctx context.Context, memberID string) (*domain.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[memberID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *mem
	return &cp, nil
}

func (m *memStore) CreateRegistrationCheckout(ctx context.Context, checkout domain.PendingCheckout, waiverAcceptanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := *checkout.Registration
	e, ok := m.events[reg.EventID]
	if !ok {
		return domain.ErrNotFound
	}
	for _, existing := range m.registrations {
		if existing.EventID == reg.EventID &&
			existing.Participant.NationalID == reg.Participant.NationalID &&
			existing.Status != domain.RegistrationCancelled {
			return domain.ErrDuplicateRegistration
		}
	}
	if e.CurrentParticipants >= e.MaxParticipants {
		return domain.ErrCapacityExceeded
	}
	if waiverAcceptanceID != "" {
		linked, ok := m.waivers[waiverAcceptanceID]
		if !ok || linked != "" {
			return domain.NewValidationError("waiver_acceptance_id", "unknown or already used")
		}
		m.waivers[waiverAcceptanceID] = reg.ID
	}

	e.CurrentParticipants++
	m.registrations[reg.ID] = &reg
	p := *checkout.Payment
	m.payments[p.ID] = &p
	return nil
}

func (m *memStore) CreateMembershipCheckout(ctx context.Context, payment *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[payment.MemberID]
	if !ok {
		return domain.ErrNotFound
	}
	mem.Status = domain.MembershipPending
	p := *payment
	m.payments[p.ID] = &p
	return nil
}

func (m *memStore) AttachSession(ctx context.Context, paymentID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return m.attachErr
	}
	p, ok := m.payments[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	p.SessionID = sessionID
	return nil
}

func (m *memStore) AbandonCheckout(ctx context.Context, paymentID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status != domain.PaymentPending {
		return nil
	}
	p.Status = domain.PaymentFailed
	if reg, ok := m.registrations[p.RegistrationID]; ok && reg.Status == domain.RegistrationPending {
		reg.Status = domain.RegistrationCancelled
		reg.AdminNotes = append(reg.AdminNotes, note)
		m.events[reg.EventID].CurrentParticipants--
	}
	if mem, ok := m.members[p.MemberID]; ok && mem.Status == domain.MembershipPending {
		mem.Status = domain.MembershipFailed
		mem.AdminNotes = append(mem.AdminNotes, note)
	}
	return nil
}

func (m *memStore) PaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.SessionID == sessionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) PaymentByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Settle(ctx context.Context, s domain.Settlement) (*domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settleCalls++
	if m.settleErr != nil && (m.settleFailures == 0 || m.settleCalls <= m.settleFailures) {
		return nil, m.settleErr
	}

	p, ok := m.payments[s.PaymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if p.Status != domain.PaymentPending {
		return nil, domain.ErrPaymentSettled
	}
	p.Status = s.Status
	p.ChargeID = s.ChargeID

	if p.Purpose() == domain.PurposeMembership {
		mem := m.members[p.MemberID]
		rec := &domain.Recipient{Purpose: domain.PurposeMembership, SubjectID: mem.ID, Name: mem.FullName(), Email: mem.Email}
		if s.Status == domain.PaymentCompleted {
			from, until := s.ValidFrom, s.ValidUntil
			mem.Status = domain.MembershipActive
			mem.ValidFrom, mem.ValidUntil = &from, &until
			rec.ValidUntil = &until
		} else {
			mem.Status = domain.MembershipFailed
		}
		mem.AdminNotes = append(mem.AdminNotes, s.Note)
		return rec, nil
	}

	reg := m.registrations[p.RegistrationID]
	if s.Status == domain.PaymentCompleted {
		reg.Status = domain.RegistrationConfirmed
	} else {
		reg.Status = domain.RegistrationCancelled
		m.events[reg.EventID].CurrentParticipants--
	}
	reg.AdminNotes = append(reg.AdminNotes, s.Note)
	return &domain.Recipient{
		Purpose:    domain.PurposeRegistration,
		SubjectID:  reg.ID,
		Name:       reg.Participant.FullName(),
		Email:      reg.Participant.Email,
		EventTitle: m.events[reg.EventID].Title,
	}, nil
}

func (m *memStore) AppendNote(ctx context.Context, paymentID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	p, ok := m.payments[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	if mem, ok := m.members[p.MemberID]; ok && p.Purpose() == domain.PurposeMembership {
		mem.AdminNotes = append(mem.AdminNotes, note)
		return nil
	}
	if reg, ok := m.registrations[p.RegistrationID]; ok {
		reg.AdminNotes = append(reg.AdminNotes, note)
		return nil
	}
	return domain.ErrNotFound
}

// MockGateway implements ports.PaymentGateway for testing
type MockGateway struct {
	mu                sync.Mutex
	CreateSessionFunc func(ctx context.Context, req domain.SessionRequest) (*domain.Session, error)
	GetChargeFunc     func(ctx context.Context, chargeID string) (*domain.ChargeInfo, error)
	sessionRequests   []domain.SessionRequest
	chargeCalls       int
}

func (m *MockGateway) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Session, error) {
	m.mu.Lock()
	m.sessionRequests = append(m.sessionRequests, req)
	n := len(m.sessionRequests)
	m.mu.Unlock()
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, req)
	}
	id := fmt.Sprintf("pref-%d", n)
	return &domain.Session{ID: id, RedirectURL: "https://checkout.example/" + id}, nil
}

func (m *MockGateway) GetCharge(ctx context.Context, chargeID string) (*domain.ChargeInfo, error) {
	m.mu.Lock()
	m.chargeCalls++
	m.mu.Unlock()
	if m.GetChargeFunc != nil {
		return m.GetChargeFunc(ctx, chargeID)
	}
	return nil, errors.New("charge not found")
}

// MockNotifier implements ports.ConfirmationNotifier for testing
type MockNotifier struct {
	mu      sync.Mutex
	Err     error
	Panic   bool
	Sent    []domain.Confirmation
	Attempt int
}

func (m *MockNotifier) NotifyConfirmation(ctx context.Context, c domain.Confirmation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempt++
	if m.Panic {
		panic("mail relay exploded")
	}
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, c)
	return nil
}

func (m *MockNotifier) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}

// MockValidator implements ports.WebhookValidator for testing
type MockValidator struct {
	Err error
}

func (m *MockValidator) ValidateSignature(xSignature, xRequestID, dataID string) error {
	return m.Err
}

// memLedger implements ports.EventLedger for testing
type memLedger struct {
	mu      sync.Mutex
	results map[string]domain.ReconcileResult
	seenErr error
}

func newMemLedger() *memLedger {
	return &memLedger{results: map[string]domain.ReconcileResult{}}
}

func (l *memLedger) Seen(ctx context.Context, eventID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seenErr != nil {
		return false, l.seenErr
	}
	_, ok := l.results[eventID]
	return ok, nil
}

func (l *memLedger) Record(ctx context.Context, eventID, eventType string, result domain.ReconcileResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.results[eventID]; !ok {
		l.results[eventID] = result
	}
	return nil
}

func (l *memLedger) result(eventID string) (domain.ReconcileResult, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.results[eventID]
	return r, ok
}

var fixedNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		Delay:       time.Millisecond,
		Sleep:       func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
}

func boolPtr(b bool) *bool { return &b }

func validRequest(eventID, nationalID string) domain.EnrollmentRequest {
	return domain.EnrollmentRequest{
		EventID:    eventID,
		FirstName:  "Lucia",
		LastName:   "Fernandez",
		Email:      "lucia@example.com",
		Phone:      "+54 11 5555 1234",
		NationalID: nationalID,
		ShirtSize:  "m",
		Consents: domain.ConsentInput{
			PrivacyAccepted:        boolPtr(true),
			ChannelSharingAccepted: boolPtr(true),
		},
	}
}
