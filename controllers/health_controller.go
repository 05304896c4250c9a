package controllers

import (
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Health reports whether the service can reach its database.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			utils.LogError("Health check failed: %v", err)
			utils.ServiceUnavailable(c, utils.ErrServiceUnavailable, err.Error())
			return
		}
		utils.Success(c, "ok", gin.H{"service": utils.AppName, "version": utils.APIVersion})
	}
}
