// Package handlers contains the HTTP handlers for the enrollment service.
package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fitstack/fitstack-enrollments/internal/core/domain"
)

// Enrollments is the checkout side of the service.
type Enrollments interface {
	CheckCapacity(ctx context.Context, eventID string) (*domain.Event, error)
	Enroll(ctx context.Context, req domain.EnrollmentRequest) (*domain.CheckoutSession, error)
	CheckoutMembership(ctx context.Context, req domain.MembershipCheckoutRequest) (*domain.CheckoutSession, error)
}

// WebhookProcessor handles verified provider notifications.
type WebhookProcessor interface {
	VerifySignature(xSignature, xRequestID, dataID string) error
	ProcessWebhook(ctx context.Context, n domain.WebhookNotification, xSignature, xRequestID string) (domain.ReconcileResult, error)
}

// PaymentLookup reads local payment state.
type PaymentLookup interface {
	PaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error)
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Field     string `json:"field,omitempty"`
}

// EnrollmentHandler handles HTTP requests for enrollments and payments.
type EnrollmentHandler struct {
	enrollments Enrollments
	webhooks    WebhookProcessor
	payments    PaymentLookup
}

// NewEnrollmentHandler creates a new enrollment handler.
func NewEnrollmentHandler(enrollments Enrollments, webhooks WebhookProcessor, payments PaymentLookup) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, webhooks: webhooks, payments: payments}
}

// CreateCheckout handles POST /api/v1/enrollments/checkout
// Registers the participant and returns the hosted checkout to redirect to.
func (h *EnrollmentHandler) CreateCheckout(c *gin.Context) {
	var req domain.EnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "Invalid request: " + err.Error(),
			ErrorCode: "VALIDATION_ERROR",
		})
		return
	}

	session, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// CheckoutMembership handles POST /api/v1/memberships/checkout
func (h *EnrollmentHandler) CheckoutMembership(c *gin.Context) {
	var req domain.MembershipCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "Invalid request: " + err.Error(),
			ErrorCode: "VALIDATION_ERROR",
			Field:     "member_id",
		})
		return
	}

	session, err := h.enrollments.CheckoutMembership(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Availability handles GET /api/v1/events/:event_id/availability
func (h *EnrollmentHandler) Availability(c *gin.Context) {
	event, err := h.enrollments.CheckCapacity(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":    event.ID,
		"title":       event.Title,
		"seats_left":  event.MaxParticipants - event.CurrentParticipants,
		"price_cents": event.PriceCents,
		"currency":    event.Currency,
	})
}

// PaymentStatus handles GET /api/v1/payments/sessions/:session_id
// Used by the post-redirect page to show the local outcome.
func (h *EnrollmentHandler) PaymentStatus(c *gin.Context) {
	payment, err := h.payments.PaymentBySessionID(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "payment not found", ErrorCode: "PAYMENT_NOT_FOUND"})
			return
		}
		log.Printf("PaymentStatus error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error", ErrorCode: "INTERNAL_ERROR"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentId": payment.ID,
		"sessionId": payment.SessionID,
		"status":    payment.Status,
		"purpose":   payment.Purpose(),
	})
}

// HandleWebhook handles POST /webhooks/mercadopago
// Receives Mercado Pago notifications.
func (h *EnrollmentHandler) HandleWebhook(c *gin.Context) {
	xSignature := c.GetHeader("x-signature")
	xRequestID := c.GetHeader("x-request-id")
	// The signed data.id is the query parameter; the body copy is a fallback.
	dataID := c.Query("data.id")

	if err := h.webhooks.VerifySignature(xSignature, xRequestID, dataID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "rejected", "error": "invalid signature"})
		return
	}

	var notification domain.WebhookNotification
	if err := c.ShouldBindJSON(&notification); err != nil {
		// MP may send other formats; nothing to process.
		log.Printf("Webhook parse error: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}
	if dataID != "" {
		notification.Data.ID = dataID
	}

	result, err := h.webhooks.ProcessWebhook(c.Request.Context(), notification, xSignature, xRequestID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "processed", "result": result})
	case errors.Is(err, domain.ErrWebhookValidationFailed):
		c.JSON(http.StatusBadRequest, gin.H{"status": "rejected", "error": "invalid signature"})
	case errors.Is(err, domain.ErrEntityNotFound):
		// Redelivery cannot make the payment appear.
		c.JSON(http.StatusOK, gin.H{"status": "processed", "result": domain.ResultNotFound})
	default:
		log.Printf("Webhook processing error (request %s): %v", xRequestID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "retry"})
	}
}

// Health handles GET /health
func (h *EnrollmentHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "fitstack-enrollments",
		"version": "1.0.0",
	})
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     vErr.Error(),
			ErrorCode: "VALIDATION_ERROR",
			Field:     vErr.Field,
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEventUnavailable), errors.Is(err, domain.ErrCapacityExceeded):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateRegistration), errors.Is(err, domain.ErrMembershipActive):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrPaymentGatewayError):
		status = http.StatusBadGateway
	}

	resp := ErrorResponse{Error: "Internal server error", ErrorCode: "INTERNAL_ERROR"}
	var svcErr *domain.ServiceError
	if errors.As(err, &svcErr) && status != http.StatusInternalServerError {
		resp.Error = svcErr.Message
		resp.ErrorCode = svcErr.Code
	}
	if status >= http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	c.JSON(status, resp)
}
