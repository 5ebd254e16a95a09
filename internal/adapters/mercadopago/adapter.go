// Package mercadopago implements the PaymentGateway interface using the official SDK.
package mercadopago

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
)

// Options configures the adapter.
type Options struct {
	AccessToken     string
	NotificationURL string
	SuccessURL      string
	FailureURL      string
	PendingURL      string
	// UseSandbox returns the sandbox init point as redirect URL.
	UseSandbox bool
}

// Adapter implements ports.PaymentGateway using Mercado Pago SDK.
// Clients are built once and injected; no package-level state.
type Adapter struct {
	preferences preference.Client
	payments    payment.Client
	opts        Options
}

// NewAdapter creates a new Mercado Pago adapter.
func NewAdapter(opts Options) (*Adapter, error) {
	cfg, err := config.New(opts.AccessToken)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPaymentGatewayError,
			"failed to create MP config", "MP_CONFIG_ERROR")
	}
	return NewAdapterWithClients(preference.NewClient(cfg), payment.NewClient(cfg), opts), nil
}

// NewAdapterWithClients creates an adapter around existing SDK clients.
func NewAdapterWithClients(preferences preference.Client, payments payment.Client, opts Options) *Adapter {
	return &Adapter{preferences: preferences, payments: payments, opts: opts}
}

// CreateSession creates a Checkout Pro preference.
func (a *Adapter) CreateSession(ctx context.Context, req domain.SessionRequest) (*domain.Session, error) {
	prefRequest := preference.Request{
		Items: []preference.ItemRequest{
			{
				Title:       req.Title,
				Description: req.Description,
				Quantity:    1,
				UnitPrice:   centsToUnits(req.AmountCents),
				CurrencyID:  req.Currency,
			},
		},
		Payer: &preference.PayerRequest{
			Email: req.PayerEmail,
		},
		ExternalReference: req.ExternalReference,
		AutoReturn:        "approved",
		BackURLs: &preference.BackURLsRequest{
			Success: a.opts.SuccessURL,
			Failure: a.opts.FailureURL,
			Pending: a.opts.PendingURL,
		},
		NotificationURL: a.opts.NotificationURL,
		Metadata:        toAnyMap(req.Metadata),
	}

	result, err := a.preferences.Create(ctx, prefRequest)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPaymentGatewayError,
			"failed to create preference: "+err.Error(), "MP_PREFERENCE_ERROR")
	}

	redirect := result.InitPoint
	if a.opts.UseSandbox && result.SandboxInitPoint != "" {
		redirect = result.SandboxInitPoint
	}

	return &domain.Session{
		ID:          result.ID,
		RedirectURL: redirect,
	}, nil
}

// GetCharge retrieves payment details from Mercado Pago.
func (a *Adapter) GetCharge(ctx context.Context, chargeID string) (*domain.ChargeInfo, error) {
	id, err := strconv.Atoi(chargeID)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrValidation,
			"invalid payment ID format", "INVALID_PAYMENT_ID")
	}

	result, err := a.payments.Get(ctx, id)
	if err != nil {
		return nil, domain.NewServiceError(domain.ErrPaymentGatewayError,
			"failed to get payment info: "+err.Error(), "MP_PAYMENT_ERROR")
	}

	approvedAt := result.DateApproved
	if approvedAt.IsZero() {
		approvedAt = time.Now()
	}

	return &domain.ChargeInfo{
		ChargeID:          chargeID,
		Status:            result.Status,
		StatusDetail:      result.StatusDetail,
		ExternalReference: result.ExternalReference,
		AmountCents:       unitsToCents(result.TransactionAmount),
		Currency:          result.CurrencyID,
		PayerEmail:        result.Payer.Email,
		ApprovedAt:        approvedAt,
	}, nil
}

// centsToUnits converts integer cents to the decimal amount MP expects.
func centsToUnits(cents int64) float64 {
	return float64(cents) / 100
}

func unitsToCents(units float64) int64 {
	return int64(math.Round(units * 100))
}

func toAnyMap(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
