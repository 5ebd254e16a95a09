package service

import (
	"errors"
	"testing"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
)

func TestValidate_Normalizes(t *testing.T) {
	req := validRequest(" E1 ", "12.345.678")
	req.FirstName = "  Lucia "
	req.Email = "  Lucia@Example.COM "
	req.Attributes = map[string]any{"club": "Rosario Runners"}

	got, err := NewRequestValidator().Validate(req, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.EventID != "E1" {
		t.Errorf("event id not trimmed: %q", got.EventID)
	}
	if got.Participant.FirstName != "Lucia" {
		t.Errorf("first name not trimmed: %q", got.Participant.FirstName)
	}
	if got.Participant.Email != "lucia@example.com" {
		t.Errorf("email not normalized: %q", got.Participant.Email)
	}
	if got.Participant.Phone != "+541155551234" {
		t.Errorf("phone whitespace not stripped: %q", got.Participant.Phone)
	}
	if got.Participant.NationalID != "12345678" {
		t.Errorf("national id not normalized: %q", got.Participant.NationalID)
	}
	if got.Attributes["shirt_size"] != "M" || got.Attributes["club"] != "Rosario Runners" {
		t.Errorf("unexpected attributes: %v", got.Attributes)
	}
	if !got.Consents.AcceptedAt.Equal(fixedNow) {
		t.Errorf("consent timestamp not stamped: %v", got.Consents.AcceptedAt)
	}
	if got.Consents.MarketingAccepted {
		t.Error("missing marketing consent must be false")
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(r *domain.EnrollmentRequest)
		field string
	}{
		{"missing event", func(r *domain.EnrollmentRequest) { r.EventID = " " }, "event_id"},
		{"missing first name", func(r *domain.EnrollmentRequest) { r.FirstName = "" }, "first_name"},
		{"missing last name", func(r *domain.EnrollmentRequest) { r.LastName = "" }, "last_name"},
		{"bad email", func(r *domain.EnrollmentRequest) { r.Email = "lucia-at-example" }, "email"},
		{"short phone", func(r *domain.EnrollmentRequest) { r.Phone = "12345" }, "phone"},
		{"phone with letters", func(r *domain.EnrollmentRequest) { r.Phone = "11-CALL-ME" }, "phone"},
		{"missing national id", func(r *domain.EnrollmentRequest) { r.NationalID = "" }, "national_id"},
		{"bad national id", func(r *domain.EnrollmentRequest) { r.NationalID = "12/34" }, "national_id"},
		{"unknown shirt size", func(r *domain.EnrollmentRequest) { r.ShirtSize = "huge" }, "shirt_size"},
		{"empty attribute key", func(r *domain.EnrollmentRequest) { r.Attributes = map[string]any{" ": 1} }, "attributes"},
		{"privacy missing", func(r *domain.EnrollmentRequest) { r.Consents.PrivacyAccepted = nil }, "consents.privacy_accepted"},
		{"privacy false", func(r *domain.EnrollmentRequest) { r.Consents.PrivacyAccepted = boolPtr(false) }, "consents.privacy_accepted"},
		{"channel sharing false", func(r *domain.EnrollmentRequest) { r.Consents.ChannelSharingAccepted = boolPtr(false) }, "consents.channel_sharing_accepted"},
	}

	v := NewRequestValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest("E1", "X1")
			tt.edit(&req)

			_, err := v.Validate(req, fixedNow)

			var vErr *domain.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if vErr.Field != tt.field {
				t.Errorf("expected field %q, got %q (%s)", tt.field, vErr.Field, vErr.Reason)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Error("ValidationError must unwrap to ErrValidation")
			}
		})
	}
}

func TestValidate_ReportsFirstProblemOnly(t *testing.T) {
	req := validRequest("E1", "X1")
	req.Email = "nope"
	req.Consents.PrivacyAccepted = nil

	_, err := NewRequestValidator().Validate(req, fixedNow)

	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "email" {
		t.Fatalf("expected email to be reported first, got %v", err)
	}
}
