package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"messaging-service/internal/services"
)

// TransferHandler manages forwarded chats.
type TransferHandler struct {
	transfers *services.TransferService
	replies   *services.ReplyService
	log       logrus.FieldLogger
}

// NewTransferHandler builds a TransferHandler.
func NewTransferHandler(transfers *services.TransferService, replies *services.ReplyService, log logrus.FieldLogger) *TransferHandler {
	return &TransferHandler{transfers: transfers, replies: replies, log: log}
}

type createTransferRequest struct {
	ChatID    string   `json:"chat_id" binding:"required"`
	Receivers []string `json:"receivers" binding:"required"`
}

type updateTransferRequest struct {
	Receivers []string `json:"receivers" binding:"required"`
}

// CreateTransfer forwards a chat the caller participates in.
func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	var req createTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	transfer, err := h.transfers.Create(c.Request.Context(), req.ChatID, req.Receivers, userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusCreated, "chat transferred", transfer)
}

// GetTransfer returns the transfer with the original chat and its replies.
func (h *TransferHandler) GetTransfer(c *gin.Context) {
	view, err := h.transfers.FindOne(c.Request.Context(), c.Param("transfer_id"), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "transfer", view)
}

// ListSent returns transfers the caller forwarded.
func (h *TransferHandler) ListSent(c *gin.Context) {
	views, err := h.transfers.FindSentByUser(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "transfers", views)
}

// ListReceived returns transfers forwarded to the caller.
func (h *TransferHandler) ListReceived(c *gin.Context) {
	views, err := h.transfers.FindReceivedByUser(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "transfers", views)
}

// UpdateTransfer replaces the receiver list.
func (h *TransferHandler) UpdateTransfer(c *gin.Context) {
	var req updateTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	transfer, err := h.transfers.Update(c.Request.Context(), c.Param("transfer_id"), userIDFromContext(c), req.Receivers)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "transfer updated", transfer)
}

func (h *TransferHandler) MarkAsRead(c *gin.Context) {
	transfer, err := h.transfers.MarkAsRead(c.Request.Context(), c.Param("transfer_id"), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "transfer marked as read", transfer)
}

func (h *TransferHandler) HideTransfer(c *gin.Context) {
	if err := h.transfers.HideMessage(c.Request.Context(), c.Param("transfer_id"), userIDFromContext(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "transfer hidden", nil)
}

// DeleteTransfer removes the transfer for the forwarder and hides it for a receiver.
func (h *TransferHandler) DeleteTransfer(c *gin.Context) {
	removal, err := h.transfers.Remove(c.Request.Context(), c.Param("transfer_id"), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "transfer "+string(removal), gin.H{"result": removal})
}

// ListReplies returns the replies in the transfer thread.
func (h *TransferHandler) ListReplies(c *gin.Context) {
	replies, err := h.replies.FindByTransferChat(c.Request.Context(), c.Param("transfer_id"), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "replies", replies)
}
