package models

import (
	"time"

	"github.com/lib/pq"
)

// ChatStatus is the lifecycle state of a chat.
type ChatStatus string

const (
	ChatStatusAlive   ChatStatus = "ALIVE"
	ChatStatusDeleted ChatStatus = "DELETED"
)

// Chat is a primary message from one sender to a set of receivers.
type Chat struct {
	ID          string         `db:"id" json:"id"`
	SenderID    string         `db:"sender_id" json:"sender_id"`
	Receivers   pq.StringArray `db:"receivers" json:"receivers"`
	Subject     string         `db:"subject" json:"subject,omitempty"`
	Content     string         `db:"content" json:"content,omitempty"`
	Attachments pq.StringArray `db:"attachments" json:"attachments"`
	Reader      pq.StringArray `db:"reader" json:"reader"`
	HiddenFor   pq.StringArray `db:"hidden_for" json:"hidden_for"`
	Status      ChatStatus     `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// Participants returns the sender followed by every receiver.
func (c Chat) Participants() []string {
	ids := make([]string, 0, len(c.Receivers)+1)
	ids = append(ids, c.SenderID)
	return append(ids, c.Receivers...)
}

// ChatPatch carries the mutable content fields of a chat. Nil means unchanged.
type ChatPatch struct {
	Subject     *string  `json:"subject"`
	Content     *string  `json:"content"`
	Attachments []string `json:"attachments"`
}

// Empty reports whether the patch changes nothing.
func (p ChatPatch) Empty() bool {
	return p.Subject == nil && p.Content == nil && p.Attachments == nil
}

// ChatView is a chat projected for one viewer. Transfers received by the
// viewer are folded into the same shape with IsTransferred set.
type ChatView struct {
	Chat
	Role          Role   `json:"role"`
	IsOpened      bool   `json:"is_opened"`
	IsTransferred bool   `json:"is_transferred"`
	TransferID    string `json:"transfer_id,omitempty"`
	TransferredBy string `json:"transferred_by,omitempty"`
}

// ChatContent is the read-only slice of a chat exposed through a transfer.
type ChatContent struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	Subject     string    `json:"subject,omitempty"`
	Content     string    `json:"content,omitempty"`
	Attachments []string  `json:"attachments"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContentOf strips a chat down to the fields a transfer receiver may see.
func ContentOf(c Chat) ChatContent {
	attachments := []string(c.Attachments)
	if attachments == nil {
		attachments = []string{}
	}
	return ChatContent{
		ID:          c.ID,
		SenderID:    c.SenderID,
		Subject:     c.Subject,
		Content:     c.Content,
		Attachments: attachments,
		CreatedAt:   c.CreatedAt,
	}
}
