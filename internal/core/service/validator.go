package service

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
)

const (
	maxNameLength = 100
	maxAttributes = 20
	attrShirtSize = "shirt_size"
)

var (
	phonePattern      = regexp.MustCompile(`^\+?[0-9]{8,15}$`)
	nationalIDPattern = regexp.MustCompile(`^[A-Z0-9-]{2,20}$`)
	shirtSizePattern  = regexp.MustCompile(`^(XXS|XS|S|M|L|XL|XXL|XXXL)$`)
)

// RequestValidator normalizes and validates enrollment requests.
type RequestValidator struct {
	v *validator.Validate
}

// NewRequestValidator creates a RequestValidator.
func NewRequestValidator() *RequestValidator {
	return &RequestValidator{v: validator.New()}
}

// Validate returns the normalized enrollment or the first ValidationError.
// It has no side effects; now stamps the consent timestamp.
func (rv *RequestValidator) Validate(req domain.EnrollmentRequest, now time.Time) (*domain.Enrollment, error) {
	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		return nil, domain.NewValidationError("event_id", "is required")
	}

	firstName := strings.TrimSpace(req.FirstName)
	if firstName == "" {
		return nil, domain.NewValidationError("first_name", "is required")
	}
	if len(firstName) > maxNameLength {
		return nil, domain.NewValidationError("first_name", "is too long")
	}
	lastName := strings.TrimSpace(req.LastName)
	if lastName == "" {
		return nil, domain.NewValidationError("last_name", "is required")
	}
	if len(lastName) > maxNameLength {
		return nil, domain.NewValidationError("last_name", "is too long")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, domain.NewValidationError("email", "is required")
	}
	if err := rv.v.Var(email, "email"); err != nil {
		return nil, domain.NewValidationError("email", "is not a valid email address")
	}

	phone := stripSpace(req.Phone)
	if phone == "" {
		return nil, domain.NewValidationError("phone", "is required")
	}
	if !phonePattern.MatchString(phone) {
		return nil, domain.NewValidationError("phone", "must contain 8 to 15 digits with an optional leading +")
	}

	nationalID := strings.ToUpper(strings.ReplaceAll(stripSpace(req.NationalID), ".", ""))
	if nationalID == "" {
		return nil, domain.NewValidationError("national_id", "is required")
	}
	if !nationalIDPattern.MatchString(nationalID) {
		return nil, domain.NewValidationError("national_id", "has an invalid format")
	}

	attrs, err := normalizeAttributes(req.Attributes, req.ShirtSize)
	if err != nil {
		return nil, err
	}

	if !isTrue(req.Consents.PrivacyAccepted) {
		return nil, domain.NewValidationError("consents.privacy_accepted", "must be accepted")
	}
	if !isTrue(req.Consents.ChannelSharingAccepted) {
		return nil, domain.NewValidationError("consents.channel_sharing_accepted", "must be accepted")
	}

	return &domain.Enrollment{
		EventID:  eventID,
		MemberID: strings.TrimSpace(req.MemberID),
		Participant: domain.Participant{
			FirstName:  firstName,
			LastName:   lastName,
			Email:      email,
			Phone:      phone,
			NationalID: nationalID,
		},
		Attributes: attrs,
		Consents: domain.Consents{
			PrivacyAccepted:        true,
			ChannelSharingAccepted: true,
			MarketingAccepted:      isTrue(req.Consents.MarketingAccepted),
			AcceptedAt:             now.UTC(),
		},
		WaiverAcceptanceID: strings.TrimSpace(req.WaiverAcceptanceID),
	}, nil
}

// normalizeAttributes copies the free-form attributes and folds the shirt size in.
// Nothing downstream depends on specific keys.
func normalizeAttributes(in map[string]any, shirtSize string) (map[string]any, error) {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			return nil, domain.NewValidationError("attributes", "keys must not be empty")
		}
		out[key] = v
	}

	if size := strings.ToUpper(strings.TrimSpace(shirtSize)); size != "" {
		if !shirtSizePattern.MatchString(size) {
			return nil, domain.NewValidationError(attrShirtSize, "is not a known size")
		}
		out[attrShirtSize] = size
	}

	if len(out) > maxAttributes {
		return nil, domain.NewValidationError("attributes", "too many entries")
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
