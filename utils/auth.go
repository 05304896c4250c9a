package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// GenerateAdminToken creates an operator JWT for the admin endpoints
func GenerateAdminToken(secret string, adminID uint, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["admin_id"] = adminID
	claims["role"] = "admin"
	claims["exp"] = time.Now().Add(ttl).Unix()

	return token.SignedString([]byte(secret))
}
