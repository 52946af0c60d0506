package models

import (
	"time"

	"github.com/lib/pq"
)

// ChatTransfer forwards an existing chat to a new receiver set. Content is
// never copied; read, hidden and reply state belong to the transfer alone.
type ChatTransfer struct {
	ID        string         `db:"id" json:"id"`
	ChatID    string         `db:"chat_id" json:"chat_id"`
	SenderID  string         `db:"sender_id" json:"sender_id"`
	Receivers pq.StringArray `db:"receivers" json:"receivers"`
	Reader    pq.StringArray `db:"reader" json:"reader"`
	HiddenFor pq.StringArray `db:"hidden_for" json:"hidden_for"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}

// Participants returns the forwarder followed by every receiver.
func (t ChatTransfer) Participants() []string {
	ids := make([]string, 0, len(t.Receivers)+1)
	ids = append(ids, t.SenderID)
	return append(ids, t.Receivers...)
}

// TransferView is the composed result of opening a transfer.
type TransferView struct {
	ChatTransfer
	Role     Role        `json:"role"`
	IsOpened bool        `json:"is_opened"`
	Chat     ChatContent `json:"chat"`
	Replies  []Reply     `json:"replies"`
}
