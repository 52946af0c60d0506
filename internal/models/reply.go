package models

import (
	"errors"
	"strings"
	"time"
)

// ReplyStatus is the soft-delete state of a reply.
type ReplyStatus string

const (
	ReplyStatusAlive   ReplyStatus = "ALIVE"
	ReplyStatusDeleted ReplyStatus = "DELETED"
)

var (
	ErrReplyTargetMissing   = errors.New("either chat_id or transfer_id is required")
	ErrReplyTargetAmbiguous = errors.New("chat_id and transfer_id are mutually exclusive")
)

// ReplyTargetKind names the thread type a reply belongs to.
type ReplyTargetKind string

const (
	ReplyTargetChat     ReplyTargetKind = "chat"
	ReplyTargetTransfer ReplyTargetKind = "transfer"
)

// ReplyTarget is the thread a reply is attached to: exactly one chat or one
// transfer. The zero value is invalid; build one with NewReplyTarget,
// ChatTarget or TransferTarget.
type ReplyTarget struct {
	kind ReplyTargetKind
	id   string
}

// ChatTarget addresses the direct thread of a chat.
func ChatTarget(chatID string) ReplyTarget {
	return ReplyTarget{kind: ReplyTargetChat, id: chatID}
}

// TransferTarget addresses the thread of a transfer.
func TransferTarget(transferID string) ReplyTarget {
	return ReplyTarget{kind: ReplyTargetTransfer, id: transferID}
}

// NewReplyTarget builds a target from the two optional request fields.
func NewReplyTarget(chatID, transferID string) (ReplyTarget, error) {
	chatID = strings.TrimSpace(chatID)
	transferID = strings.TrimSpace(transferID)
	switch {
	case chatID != "" && transferID != "":
		return ReplyTarget{}, ErrReplyTargetAmbiguous
	case chatID != "":
		return ChatTarget(chatID), nil
	case transferID != "":
		return TransferTarget(transferID), nil
	default:
		return ReplyTarget{}, ErrReplyTargetMissing
	}
}

func (t ReplyTarget) Kind() ReplyTargetKind { return t.kind }
func (t ReplyTarget) ID() string            { return t.id }
func (t ReplyTarget) Valid() bool           { return t.kind != "" && t.id != "" }

// ChatRef is the value of the chat_id column: nil unless the target is a chat.
func (t ReplyTarget) ChatRef() *string {
	if t.kind != ReplyTargetChat {
		return nil
	}
	id := t.id
	return &id
}

// TransferRef is the value of the transfer_id column: nil unless the target is a transfer.
func (t ReplyTarget) TransferRef() *string {
	if t.kind != ReplyTargetTransfer {
		return nil
	}
	id := t.id
	return &id
}

// Reply is a threaded response on a chat or a transfer.
type Reply struct {
	ID         string      `db:"id" json:"id"`
	Content    string      `db:"content" json:"content"`
	SenderID   string      `db:"sender_id" json:"sender_id"`
	ChatID     *string     `db:"chat_id" json:"chat_id"`
	TransferID *string     `db:"transfer_id" json:"transfer_id"`
	IsPublic   bool        `db:"is_public" json:"is_public"`
	Status     ReplyStatus `db:"status" json:"status"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
}

// Target rebuilds the thread reference from the stored columns.
func (r Reply) Target() ReplyTarget {
	if r.ChatID != nil {
		return ChatTarget(*r.ChatID)
	}
	if r.TransferID != nil {
		return TransferTarget(*r.TransferID)
	}
	return ReplyTarget{}
}

// ReplyPatch carries editable reply fields. Nil means unchanged.
type ReplyPatch struct {
	Content  *string `json:"content"`
	IsPublic *bool   `json:"is_public"`
}
