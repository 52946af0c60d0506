package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

// ChatHandler manages chat endpoints.
type ChatHandler struct {
	chats    *services.ChatService
	replies  *services.ReplyService
	realtime Realtime
	log      logrus.FieldLogger
}

// NewChatHandler builds a ChatHandler. realtime may be nil.
func NewChatHandler(chats *services.ChatService, replies *services.ReplyService, realtime Realtime, log logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{
		chats:    chats,
		replies:  replies,
		realtime: realtime,
		log:      log,
	}
}

type createChatRequest struct {
	Receivers   []string `json:"receivers" binding:"required"`
	Subject     string   `json:"subject"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
}

// CreateChat stores a chat sent by the authenticated user.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	chat, err := h.chats.Create(c.Request.Context(), services.CreateChatInput{
		SenderID:    userIDFromContext(c),
		Receivers:   req.Receivers,
		Subject:     req.Subject,
		Content:     req.Content,
		Attachments: req.Attachments,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if h.realtime != nil {
		h.realtime.NewMessage(c.Request.Context(), chat)
	}
	respond(c, http.StatusCreated, "chat created", chat)
}

// ListChats returns every stored chat.
func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chats.FindAll(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "chats", chats)
}

// ListMine returns the chats the caller sent or received.
func (h *ChatHandler) ListMine(c *gin.Context) {
	views, err := h.chats.FindByUser(c.Request.Context(), userIDFromContext(c))
	h.writeViews(c, views, err)
}

// ListSent returns the caller's sent chats.
func (h *ChatHandler) ListSent(c *gin.Context) {
	views, err := h.chats.FindSentByUser(c.Request.Context(), userIDFromContext(c))
	h.writeViews(c, views, err)
}

// ListReceived returns chats and transfers received by the caller, newest first.
func (h *ChatHandler) ListReceived(c *gin.Context) {
	views, err := h.chats.FindReceivedByUser(c.Request.Context(), userIDFromContext(c))
	h.writeViews(c, views, err)
}

// ListDeleted returns the caller's soft-deleted chats.
func (h *ChatHandler) ListDeleted(c *gin.Context) {
	views, err := h.chats.FindDeletedByUser(c.Request.Context(), userIDFromContext(c))
	h.writeViews(c, views, err)
}

// GetChat returns one chat and records the caller as a reader.
func (h *ChatHandler) GetChat(c *gin.Context) {
	view, err := h.chats.FindOne(c.Request.Context(), c.Param("chat_id"), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "chat", view)
}

// UpdateChat edits subject, content or attachments.
func (h *ChatHandler) UpdateChat(c *gin.Context) {
	var patch models.ChatPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}

	chat, err := h.chats.Update(c.Request.Context(), c.Param("chat_id"), userIDFromContext(c), patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "chat updated", chat)
}

// MarkAsRead records the caller as a reader and notifies the other participants.
func (h *ChatHandler) MarkAsRead(c *gin.Context) {
	userID := userIDFromContext(c)
	chat, err := h.chats.MarkAsRead(c.Request.Context(), c.Param("chat_id"), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if h.realtime != nil {
		h.realtime.MessageRead(c.Request.Context(), chat, userID)
	}
	respond(c, http.StatusOK, "chat marked as read", chat)
}

// HideChat removes the chat from the caller's listings.
func (h *ChatHandler) HideChat(c *gin.Context) {
	if err := h.chats.HideMessage(c.Request.Context(), c.Param("chat_id"), userIDFromContext(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "chat hidden", nil)
}

// DeleteChat soft-deletes for the sender and hides for a receiver.
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	removal, err := h.chats.Remove(c.Request.Context(), c.Param("chat_id"), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "chat "+string(removal), gin.H{"result": removal})
}

// RestoreChat brings a soft-deleted chat back.
func (h *ChatHandler) RestoreChat(c *gin.Context) {
	chat, err := h.chats.Restore(c.Request.Context(), c.Param("chat_id"), userIDFromContext(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "chat restored", chat)
}

// ListReplies returns every reply in the chat thread.
func (h *ChatHandler) ListReplies(c *gin.Context) {
	replies, err := h.replies.FindByChat(c.Request.Context(), c.Param("chat_id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "replies", replies)
}

func (h *ChatHandler) writeViews(c *gin.Context, views []models.ChatView, err error) {
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respond(c, http.StatusOK, "chats", views)
}
