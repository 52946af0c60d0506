package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/services"
	"messaging-service/internal/storage"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/visibility"
)

var tracer = otel.Tracer("messaging-service/ws")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

type ChatCommands interface {
	Create(ctx context.Context, in services.CreateChatInput) (models.Chat, error)
	MarkAsRead(ctx context.Context, chatID, userID string) (models.Chat, error)
	Participants(ctx context.Context, chatID string) ([]string, error)
}

type ReplyCommands interface {
	Create(ctx context.Context, in services.CreateReplyInput) (models.Reply, error)
}

type TransferLookup interface {
	Participants(ctx context.Context, transferID string) ([]string, error)
}

// Config bounds per-connection resource use.
type Config struct {
	WriteTimeout       time.Duration
	RatePerMinute      int
	RateBurst          int
	MaxAttachments     int
	MaxAttachmentBytes int
	UploadTimeout      time.Duration
	DispatchTimeout    time.Duration
}

// Gateway authenticates websocket clients and turns their events into
// service calls. It also fans out changes made over HTTP.
type Gateway struct {
	hub       *Hub
	tokens    TokenValidator
	chats     ChatCommands
	replies   ReplyCommands
	transfers TransferLookup
	uploader  storage.Uploader
	cfg       Config
	log       logrus.FieldLogger
}

func NewGateway(hub *Hub, tokens TokenValidator, chats ChatCommands, replies ReplyCommands, transfers TransferLookup, uploader storage.Uploader, cfg Config, log logrus.FieldLogger) *Gateway {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 120
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = 2 * time.Minute
	}
	return &Gateway{
		hub:       hub,
		tokens:    tokens,
		chats:     chats,
		replies:   replies,
		transfers: transfers,
		uploader:  uploader,
		cfg:       cfg,
		log:       log,
	}
}

type threadPayload struct {
	ChatID string `json:"chat_id"`
}

type sendMessagePayload struct {
	Receivers   []string      `json:"receivers"`
	Subject     string        `json:"subject"`
	Content     string        `json:"content"`
	Attachments []string      `json:"attachments"`
	Files       []filePayload `json:"files"`
}

type filePayload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

type sendReplyPayload struct {
	ChatID     string `json:"chat_id"`
	TransferID string `json:"transfer_id"`
	Content    string `json:"content"`
	IsPublic   *bool  `json:"is_public"`
}

// Handle authenticates the handshake, upgrades the connection and starts the
// client's pumps.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = strings.TrimSpace(c.Query("token"))
	}
	userID, err := g.tokens.ValidateToken(ctx, token)
	if token == "" || err != nil || userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"status": http.StatusUnauthorized, "message": "invalid token", "data": nil})
		return
	}
	userID = visibility.NormalizeID(userID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		Client:      observability.ClientFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	span.SetAttributes(attribute.String("ws.conn_id", info.ConnID), attribute.String("user.id", userID))

	connCtx := telemetry.WithRequestID(context.Background(), info.RequestID)
	limiter := rate.NewLimiter(rate.Limit(float64(g.cfg.RatePerMinute)/60), g.cfg.RateBurst)
	client := newClient(connCtx, g.hub, conn, info, limiter)
	g.hub.Register(client)

	observability.IncWSActive()
	info.publish(connCtx, "ws_connect", "", g.hub.Connections(userID))
	g.log.WithFields(logrus.Fields{"conn_id": info.ConnID, "user_id": userID}).Info("websocket connected")
	g.hub.SendToClient(client, models.OutboundEvent{
		Event: models.EventConnected,
		Data:  map[string]string{"user_id": userID, "conn_id": info.ConnID},
	})

	go client.writePump(g.cfg.WriteTimeout)
	go func() {
		reason, abnormal := client.readPump(g.maxFrame(), g.Dispatch)
		if abnormal {
			info.publish(connCtx, "ws_error", reason, 0)
		}
		g.hub.Unregister(client)
		observability.DecWSActive()
		info.publish(connCtx, "ws_disconnect", reason, g.hub.Connections(userID))
		g.log.WithFields(logrus.Fields{"conn_id": info.ConnID, "user_id": userID}).Info("websocket disconnected")
	}()
}

func (g *Gateway) maxFrame() int64 {
	files := int64(g.cfg.MaxAttachments) * int64(g.cfg.MaxAttachmentBytes)
	return files*4/3 + 64<<10
}

// Dispatch handles one inbound frame from c.
func (g *Gateway) Dispatch(ctx context.Context, c *Client, raw []byte) {
	var in models.InboundEvent
	if err := json.Unmarshal(raw, &in); err != nil || in.Event == "" {
		g.hub.SendToClient(c, errorEvent("invalid frame"))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.DispatchTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "ws."+in.Event, trace.WithAttributes(
		attribute.String("ws.conn_id", c.info.ConnID),
		attribute.String("user.id", c.info.UserID),
	))
	defer span.End()
	observability.IncWSEvent(in.Event)

	var err error
	switch in.Event {
	case models.EventJoinChat:
		err = g.joinChat(ctx, c, in.Data)
	case models.EventLeaveChat:
		err = g.leaveChat(c, in.Data)
	case models.EventSendMessage:
		err = g.sendMessage(ctx, c, in.Data, false)
	case models.EventSendMessageWithFiles:
		err = g.sendMessage(ctx, c, in.Data, true)
	case models.EventSendReply:
		err = g.sendReply(ctx, c, in.Data)
	case models.EventMarkAsRead:
		err = g.markAsRead(ctx, c, in.Data)
	case models.EventGetOnlineUsers:
		g.hub.SendToClient(c, models.OutboundEvent{
			Event: models.EventOnlineUsers,
			Data:  map[string][]string{"users": g.hub.OnlineUsers()},
		})
	default:
		err = apperrors.BadRequest("unknown event "+in.Event, nil)
	}
	if err != nil {
		span.RecordError(err)
		g.replyError(c, in.Event, err)
	}
}

func (g *Gateway) joinChat(ctx context.Context, c *Client, data json.RawMessage) error {
	var p threadPayload
	if err := decode(data, &p); err != nil || strings.TrimSpace(p.ChatID) == "" {
		return apperrors.BadRequest("chat_id is required", err)
	}
	participants, err := g.chats.Participants(ctx, p.ChatID)
	if err != nil {
		return err
	}
	if !visibility.Contains(participants, c.info.UserID) {
		return apperrors.Forbidden("not a participant of this chat")
	}
	g.hub.Join(threadRoom(p.ChatID), c)
	g.hub.SendToClient(c, models.OutboundEvent{Event: models.EventJoinedChat, Data: threadPayload{ChatID: p.ChatID}})
	return nil
}

func (g *Gateway) leaveChat(c *Client, data json.RawMessage) error {
	var p threadPayload
	if err := decode(data, &p); err != nil || strings.TrimSpace(p.ChatID) == "" {
		return apperrors.BadRequest("chat_id is required", err)
	}
	g.hub.Leave(threadRoom(p.ChatID), c)
	g.hub.SendToClient(c, models.OutboundEvent{Event: models.EventLeftChat, Data: threadPayload{ChatID: p.ChatID}})
	return nil
}

func (g *Gateway) sendMessage(ctx context.Context, c *Client, data json.RawMessage, withFiles bool) error {
	var p sendMessagePayload
	if err := decode(data, &p); err != nil {
		return apperrors.BadRequest("invalid message payload", err)
	}

	attachments := p.Attachments
	var uploaded []string
	if withFiles {
		links, err := g.uploadFiles(ctx, c.info.UserID, p.Files)
		if err != nil {
			return err
		}
		uploaded = links
		attachments = append(append([]string{}, attachments...), links...)
	}

	chat, err := g.chats.Create(ctx, services.CreateChatInput{
		SenderID:    c.info.UserID,
		Receivers:   p.Receivers,
		Subject:     p.Subject,
		Content:     p.Content,
		Attachments: attachments,
	})
	if err != nil {
		storage.DeleteAll(ctx, g.uploader, uploaded, g.cfg.UploadTimeout, g.log)
		return err
	}

	g.NewMessage(ctx, chat)
	g.hub.SendToClient(c, models.OutboundEvent{Event: models.EventMessageSent, Data: chat})
	return nil
}

// uploadFiles validates every file before the first upload starts.
func (g *Gateway) uploadFiles(ctx context.Context, userID string, payload []filePayload) ([]string, error) {
	files := make([]storage.File, 0, len(payload))
	for _, f := range payload {
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, apperrors.BadRequest("file "+f.Name+" is not valid base64", err)
		}
		files = append(files, storage.File{Name: f.Name, ContentType: f.ContentType, Data: data})
	}

	checked, err := storage.ValidateFiles(files, storage.Limits{
		MaxFiles:     g.cfg.MaxAttachments,
		MaxFileBytes: g.cfg.MaxAttachmentBytes,
	})
	if err != nil {
		return nil, err
	}
	return storage.UploadAll(ctx, g.uploader, checked, "chats/"+userID, g.cfg.UploadTimeout, g.log)
}

func (g *Gateway) sendReply(ctx context.Context, c *Client, data json.RawMessage) error {
	var p sendReplyPayload
	if err := decode(data, &p); err != nil {
		return apperrors.BadRequest("invalid reply payload", err)
	}
	reply, err := g.replies.Create(ctx, services.CreateReplyInput{
		Content:    p.Content,
		SenderID:   c.info.UserID,
		ChatID:     p.ChatID,
		TransferID: p.TransferID,
		IsPublic:   p.IsPublic,
	})
	if err != nil {
		return err
	}

	g.fanOutReply(ctx, reply)
	g.hub.SendToClient(c, models.OutboundEvent{Event: models.EventReplySent, Data: reply})
	return nil
}

func (g *Gateway) markAsRead(ctx context.Context, c *Client, data json.RawMessage) error {
	var p threadPayload
	if err := decode(data, &p); err != nil || strings.TrimSpace(p.ChatID) == "" {
		return apperrors.BadRequest("chat_id is required", err)
	}
	chat, err := g.chats.MarkAsRead(ctx, p.ChatID, c.info.UserID)
	if err != nil {
		return err
	}
	g.hub.SendToClient(c, models.OutboundEvent{Event: models.EventMarkedAsRead, Data: threadPayload{ChatID: chat.ID}})
	g.MessageRead(ctx, chat, c.info.UserID)
	return nil
}

// NewMessage pushes new_message to every receiver of chat.
func (g *Gateway) NewMessage(_ context.Context, chat models.Chat) {
	g.hub.SendToUsers(chat.Receivers, models.OutboundEvent{Event: models.EventNewMessage, Data: chat})
}

// MessageRead tells every participant except the reader that chat was read.
func (g *Gateway) MessageRead(_ context.Context, chat models.Chat, readerID string) {
	event := models.OutboundEvent{
		Event: models.EventMessageRead,
		Data: models.MessageReadEvent{
			ChatID:   chat.ID,
			ReaderID: readerID,
			ReadAt:   time.Now().UTC(),
		},
	}
	g.hub.SendToUsers(others(chat.Participants(), readerID), event)
}

// ReplyCreated fans out a reply created over HTTP. The author's own
// connections get reply_sent.
func (g *Gateway) ReplyCreated(ctx context.Context, reply models.Reply) {
	g.fanOutReply(ctx, reply)
	g.hub.SendToUser(reply.SenderID, models.OutboundEvent{Event: models.EventReplySent, Data: reply})
}

// fanOutReply delivers a public reply to the other participants of its
// thread. Private replies go nowhere beyond the author.
func (g *Gateway) fanOutReply(ctx context.Context, reply models.Reply) {
	if !reply.IsPublic {
		return
	}

	var (
		participants []string
		err          error
	)
	target := reply.Target()
	switch target.Kind() {
	case models.ReplyTargetChat:
		participants, err = g.chats.Participants(ctx, target.ID())
	case models.ReplyTargetTransfer:
		participants, err = g.transfers.Participants(ctx, target.ID())
	default:
		return
	}
	if err != nil {
		g.log.WithError(err).WithField("reply_id", reply.ID).Warn("could not resolve reply participants")
		return
	}
	g.hub.SendToUsers(others(participants, reply.SenderID), models.OutboundEvent{Event: models.EventReplyReceived, Data: reply})
}

func (g *Gateway) replyError(c *Client, event string, err error) {
	message := "internal error"
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		if appErr.Code == apperrors.CodeInternal {
			g.log.WithError(err).WithField("event", event).Error("websocket event failed")
		}
	} else {
		g.log.WithError(err).WithField("event", event).Error("websocket event failed")
	}
	g.hub.SendToClient(c, errorEvent(message))
}

func errorEvent(message string) models.OutboundEvent {
	return models.OutboundEvent{Event: models.EventError, Data: models.ErrorEvent{Message: message}}
}
