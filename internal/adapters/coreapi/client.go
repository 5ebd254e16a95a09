// Package coreapi provides the HTTP client used to tell FitStack Core about
// settled payments. Core owns the outgoing e-mail.
package coreapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
)

// Client implements ports.ConfirmationNotifier.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Core API client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// confirmationPayload is the body Core expects.
type confirmationPayload struct {
	PaymentID   string     `json:"payment_id"`
	Status      string     `json:"status"`
	Purpose     string     `json:"purpose"`
	SubjectID   string     `json:"subject_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	EventTitle  string     `json:"event_title,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	SettledAt   time.Time  `json:"settled_at"`
}

// NotifyConfirmation sends a settlement confirmation to Core.
// POST /api/v1/enrollments/payment-confirmed/
func (c *Client) NotifyConfirmation(ctx context.Context, confirmation domain.Confirmation) error {
	url := fmt.Sprintf("%s/api/v1/enrollments/payment-confirmed/", c.baseURL)

	r := confirmation.Recipient
	jsonBody, err := json.Marshal(confirmationPayload{
		PaymentID:   confirmation.PaymentID,
		Status:      string(confirmation.Status),
		Purpose:     string(r.Purpose),
		SubjectID:   r.SubjectID,
		Name:        r.Name,
		Email:       r.Email,
		EventTitle:  r.EventTitle,
		ValidUntil:  r.ValidUntil,
		AmountCents: confirmation.AmountCents,
		Currency:    confirmation.Currency,
		SettledAt:   confirmation.SettledAt,
	})
	if err != nil {
		return domain.NewServiceError(domain.ErrNotification,
			"failed to marshal payload", "MARSHAL_ERROR")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return domain.NewServiceError(domain.ErrNotification,
			"failed to create request", "REQUEST_ERROR")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewServiceError(domain.ErrNotification,
			"request failed: "+err.Error(), "HTTP_ERROR")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.NewServiceError(domain.ErrNotification,
			fmt.Sprintf("Core returned status %d: %s", resp.StatusCode, string(body)),
			"CORE_ERROR")
	}

	return nil
}
