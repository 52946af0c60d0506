package models

import (
	"encoding/json"
	"time"
)

// Realtime event names exchanged over the websocket gateway.
const (
	EventJoinChat             = "join_chat"
	EventLeaveChat            = "leave_chat"
	EventSendMessage          = "send_message"
	EventSendMessageWithFiles = "send_message_with_files"
	EventSendReply            = "send_reply"
	EventMarkAsRead           = "mark_as_read"
	EventGetOnlineUsers       = "get_online_users"

	EventConnected     = "connected"
	EventJoinedChat    = "joined_chat"
	EventLeftChat      = "left_chat"
	EventNewMessage    = "new_message"
	EventMessageSent   = "message_sent"
	EventReplyReceived = "reply_received"
	EventReplySent     = "reply_sent"
	EventMarkedAsRead  = "marked_as_read"
	EventMessageRead   = "message_read"
	EventOnlineUsers   = "online_users"
	EventError         = "error"
)

// InboundEvent is a frame sent by a websocket client.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OutboundEvent is a frame pushed to websocket clients.
type OutboundEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// MessageReadEvent tells other participants that a chat was opened.
type MessageReadEvent struct {
	ChatID   string    `json:"chat_id"`
	ReaderID string    `json:"reader_id"`
	ReadAt   time.Time `json:"read_at"`
}

// ErrorEvent carries a human-readable failure back to the caller.
type ErrorEvent struct {
	Message string `json:"message"`
}
