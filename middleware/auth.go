package middleware

import (
	"fmt"
	"strings"

	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

// AdminAuthMiddleware guards operator endpoints. The bearer token must be
// an HMAC-signed JWT carrying an admin_id claim or role "admin".
func AdminAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.LogError("Missing Authorization header")
			utils.Unauthorized(c, "Authorization header is required")
			c.Abort()
			return
		}

		// Extract token from Bearer header
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			utils.LogError("Invalid Bearer token format")
			utils.Unauthorized(c, utils.ErrUnauthorized)
			c.Abort()
			return
		}

		if jwtSecret == "" {
			utils.LogError("JWT secret not configured")
			utils.InternalServerError(c, "JWT secret not configured", nil)
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			utils.LogError("Invalid admin token: %v", err)
			utils.Unauthorized(c, utils.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			utils.LogError("Invalid admin token claims")
			utils.Unauthorized(c, "Invalid token claims")
			c.Abort()
			return
		}

		adminID, hasID := claims["admin_id"].(float64)
		role, _ := claims["role"].(string)
		if !hasID && role != "admin" {
			utils.LogError("Token without admin claims attempted operator access")
			utils.Forbidden(c, "Admin access required")
			c.Abort()
			return
		}

		c.Set("admin_id", uint(adminID))
		utils.LogDebug("Admin %d authenticated", uint(adminID))
		c.Next()
	}
}
