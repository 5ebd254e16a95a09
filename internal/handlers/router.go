package handlers

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter configures the Gin router with all routes.
func SetupRouter(handler *EnrollmentHandler, ginMode, serviceAPIKey string) *gin.Engine {
	gin.SetMode(ginMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RequestIDMiddleware())

	// Health check (public)
	router.GET("/health", handler.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/events/:event_id/availability", handler.Availability)
		v1.POST("/enrollments/checkout", handler.CreateCheckout)
		v1.POST("/memberships/checkout", handler.CheckoutMembership)

		payments := v1.Group("/payments")
		payments.Use(ServiceAuthMiddleware(serviceAPIKey))
		{
			payments.GET("/sessions/:session_id", handler.PaymentStatus)
		}
	}

	// Webhook endpoint (public, validates x-signature)
	router.POST("/webhooks/mercadopago", handler.HandleWebhook)

	return router
}
