package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/consultbridge/ConsultBridge-Backend/internal/handlers"
)

func RegisterPublicEndpoints(
	router *gin.Engine,
	paymentHandler *handlers.PaymentHandler,
) {
	public := router.Group("/api")

	public.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Signature-verified inside the handler; no bearer auth.
	public.POST("/webhooks/razorpay", paymentHandler.RazorpayWebhook)
}
