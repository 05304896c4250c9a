package routes

import (
	"github.com/Govind-619/paysync/controllers"
	"github.com/Govind-619/paysync/middleware"
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies is everything the router hands to its handlers
type Dependencies struct {
	DB        *gorm.DB
	Payments  *controllers.PaymentController
	Admin     *controllers.AdminController
	JWTSecret string
}

// SetupRouter initializes and returns the Gin router with all routes
func SetupRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(utils.RecoveryMiddleware())
	router.Use(utils.RequestIDMiddleware())
	router.Use(utils.LoggerMiddleware())
	router.Use(utils.CORSMiddleware())
	router.Use(utils.SecurityHeadersMiddleware())

	router.GET("/healthz", controllers.Health(deps.DB))

	// API version group
	api := router.Group("/" + utils.APIVersion)
	{
		initPaymentRoutes(api, deps)
		initAdminRoutes(api, deps)
	}

	return router
}
