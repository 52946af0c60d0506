package handlers

import (
	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	if id := telemetry.RequestIDFromContext(c.Request.Context()); id != "" {
		return id
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	return middleware.UserID(c)
}
