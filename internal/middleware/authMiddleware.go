package middleware

import (
	"net/http"
	"strings"

	"github.com/dimicheck/public-api/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Validates JWT token and requires authentication
func RequireAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			jsonError(c, http.StatusUnauthorized, "login required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			jsonError(c, http.StatusUnauthorized, "invalid authorization header format, use: Bearer <token>")
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			jsonError(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		userIDStr, _ := claims["user_id"].(string)
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			jsonError(c, http.StatusUnauthorized, "invalid token claims")
			return
		}

		c.Set("user_id", userID)
		c.Set("email", claims["email"])
		c.Set("role", claims["role"])

		c.Next()
	}
}
