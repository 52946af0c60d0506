package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/auth"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "userID"

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// AuthMiddleware validates the Authorization header and stores the caller's id.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "missing authorization")
			return
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			abortUnauthorized(c, "invalid authorization header")
			return
		}

		userID, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil || userID == "" {
			abortUnauthorized(c, "invalid token")
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// UserID returns the id stored by AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"status":  http.StatusUnauthorized,
		"message": message,
		"data":    nil,
	})
}
