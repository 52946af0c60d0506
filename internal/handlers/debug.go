package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/services"
)

// RetentionRunner triggers a single retention pass.
type RetentionRunner interface {
	RunOnce(ctx context.Context) (int64, error)
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, auditor services.Auditor, retention RetentionRunner, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if auditor == nil {
			respond(c, http.StatusServiceUnavailable, "audit emitter not configured", nil)
			return
		}
		auditor.Emit(c.Request.Context(), "INFO", "audit_test", "debug", "audit test "+requestIDFromContext(c), userIDFromContext(c))
		respond(c, http.StatusOK, "ok", nil)
	})

	router.POST("/debug/retention/run", func(c *gin.Context) {
		if retention == nil {
			respond(c, http.StatusServiceUnavailable, "retention job not configured", nil)
			return
		}
		purged, err := retention.RunOnce(c.Request.Context())
		if err != nil {
			respondError(c, nil, err)
			return
		}
		respond(c, http.StatusOK, "retention run finished", gin.H{"purged": purged})
	})
}
