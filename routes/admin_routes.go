package routes

import (
	"github.com/Govind-619/paysync/middleware"
	"github.com/gin-gonic/gin"
)

// initAdminRoutes initializes the operator routes
func initAdminRoutes(router *gin.RouterGroup, deps Dependencies) {
	admin := router.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(deps.JWTSecret))
	{
		admin.POST("/payments/sync", deps.Payments.SyncPendingPayments)
		admin.GET("/payments/review", deps.Admin.ListReviewQueue)
		admin.GET("/webhooks", deps.Admin.ListWebhookEvents)
	}
}
