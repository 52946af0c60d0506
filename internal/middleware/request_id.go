package middleware

import (
	"github.com/gin-gonic/gin"

	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// RequestID propagates X-Request-Id, minting one when absent, and stores it on
// both the gin context and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := observability.RequestIDFromRequest(c.Request)
		c.Set(RequestIDKey, requestID)
		c.Request = c.Request.WithContext(telemetry.WithRequestID(c.Request.Context(), requestID))
		c.Writer.Header().Set(observability.RequestIDHeader, requestID)
		c.Next()
	}
}
