package routes

import (
	"github.com/gin-gonic/gin"
)

// initPaymentRoutes initializes checkout, verification and webhook routes
func initPaymentRoutes(router *gin.RouterGroup, deps Dependencies) {
	router.POST("/checkout", deps.Payments.InitiateCheckout)

	payments := router.Group("/payments")
	{
		payments.POST("/verify", deps.Payments.VerifyPayment)
		payments.GET("/:gateway_order_id", deps.Payments.GetPayment)
		payments.DELETE("/:gateway_order_id/poll", deps.Payments.CancelPoll)
	}

	// Called by the gateway, authenticated by signature
	router.POST("/webhooks/gateway", deps.Payments.HandleWebhook)
}
