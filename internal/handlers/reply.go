package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

// ReplyHandler manages replies on chat and transfer threads.
type ReplyHandler struct {
	replies  *services.ReplyService
	realtime Realtime
	log      logrus.FieldLogger
}

// NewReplyHandler builds a ReplyHandler. realtime may be nil.
func NewReplyHandler(replies *services.ReplyService, realtime Realtime, log logrus.FieldLogger) *ReplyHandler {
	return &ReplyHandler{replies: replies, realtime: realtime, log: log}
}

type createReplyRequest struct {
	Content    string `json:"content"`
	ChatID     string `json:"chat_id"`
	TransferID string `json:"transfer_id"`
	IsPublic   *bool  `json:"is_public"`
}

// CreateReply posts a reply authored by the caller.
func (h *ReplyHandler) CreateReply(c *gin.Context) {
	var req createReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	reply, err := h.replies.Create(c.Request.Context(), services.CreateReplyInput{
		Content:    req.Content,
		SenderID:   userIDFromContext(c),
		ChatID:     req.ChatID,
		TransferID: req.TransferID,
		IsPublic:   req.IsPublic,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if h.realtime != nil {
		h.realtime.ReplyCreated(c.Request.Context(), reply)
	}
	respond(c, http.StatusCreated, "reply created", reply)
}

func (h *ReplyHandler) UpdateReply(c *gin.Context) {
	var patch models.ReplyPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}

	reply, err := h.replies.Update(c.Request.Context(), c.Param("reply_id"), userIDFromContext(c), patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "reply updated", reply)
}

func (h *ReplyHandler) DeleteReply(c *gin.Context) {
	if err := h.replies.Remove(c.Request.Context(), c.Param("reply_id"), userIDFromContext(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "reply deleted", nil)
}
