package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/models"
)

// Envelope is the body of every HTTP response.
type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// Realtime pushes HTTP-originated changes to connected clients.
type Realtime interface {
	NewMessage(ctx context.Context, chat models.Chat)
	MessageRead(ctx context.Context, chat models.Chat, readerID string)
	ReplyCreated(ctx context.Context, reply models.Reply)
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Status: status, Message: message, Data: data})
}

func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	status, message := apperrors.StatusOf(err)
	if status >= http.StatusInternalServerError && log != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"request_id": requestIDFromContext(c),
			"path":       c.FullPath(),
		}).Error("request failed")
	}
	c.AbortWithStatusJSON(status, Envelope{Status: status, Message: message})
}

func bindError(c *gin.Context, err error) {
	respond(c, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
}
