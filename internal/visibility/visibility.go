// Package visibility computes the viewer-relative projection of chats and
// transfers. Nothing here is persisted; role and isOpened are recomputed from
// the stored receiver and reader sets on every read.
package visibility

import (
	"strings"

	"messaging-service/internal/models"
)

// Projection is what a single viewer sees of a message.
type Projection struct {
	Role     models.Role
	IsOpened bool
}

// NormalizeID strips the padding that JSON bodies, headers and token claims
// carry around an id. Ids are otherwise opaque and compared exactly, the same
// way the users table matches them.
func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}

// NormalizeIDs normalizes, drops empty ids and removes duplicates while
// keeping first-seen order.
func NormalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = NormalizeID(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Contains reports whether id is present in ids after normalization.
func Contains(ids []string, id string) bool {
	id = NormalizeID(id)
	if id == "" {
		return false
	}
	for _, candidate := range ids {
		if NormalizeID(candidate) == id {
			return true
		}
	}
	return false
}

// RoleOf returns the viewer's role on a message.
func RoleOf(senderID string, receiverIDs []string, viewerID string) models.Role {
	viewer := NormalizeID(viewerID)
	if viewer == "" {
		return models.RoleNone
	}
	if NormalizeID(senderID) == viewer {
		return models.RoleSender
	}
	if Contains(receiverIDs, viewer) {
		return models.RoleReceiver
	}
	return models.RoleNone
}

// IsParticipant reports whether viewer is the sender or one of the receivers.
func IsParticipant(senderID string, receiverIDs []string, viewerID string) bool {
	return RoleOf(senderID, receiverIDs, viewerID) != models.RoleNone
}

// Project applies the read rules for one viewer.
//
// A sender sees the message as opened once every receiver has read it, which
// is vacuously true for an empty receiver set. A receiver sees it as opened
// once they have read it themselves. Anyone else has no role and sees it
// unopened.
func Project(senderID string, receiverIDs, readerIDs []string, viewerID string) Projection {
	role := RoleOf(senderID, receiverIDs, viewerID)
	switch role {
	case models.RoleSender:
		for _, receiver := range receiverIDs {
			if !Contains(readerIDs, receiver) {
				return Projection{Role: role, IsOpened: false}
			}
		}
		return Projection{Role: role, IsOpened: true}
	case models.RoleReceiver:
		return Projection{Role: role, IsOpened: Contains(readerIDs, viewerID)}
	default:
		return Projection{Role: models.RoleNone, IsOpened: false}
	}
}

// ProjectChat builds the view of a chat for viewer.
func ProjectChat(chat models.Chat, viewerID string) models.ChatView {
	p := Project(chat.SenderID, chat.Receivers, chat.Reader, viewerID)
	return models.ChatView{Chat: chat, Role: p.Role, IsOpened: p.IsOpened}
}

// ProjectTransfer folds a received transfer and its original chat into the
// chat listing shape, using the transfer's own receiver and reader sets.
func ProjectTransfer(transfer models.ChatTransfer, chat models.Chat, viewerID string) models.ChatView {
	p := Project(transfer.SenderID, transfer.Receivers, transfer.Reader, viewerID)
	view := models.ChatView{
		Chat:          chat,
		Role:          p.Role,
		IsOpened:      p.IsOpened,
		IsTransferred: true,
		TransferID:    transfer.ID,
		TransferredBy: transfer.SenderID,
	}
	view.Receivers = transfer.Receivers
	view.Reader = transfer.Reader
	view.HiddenFor = transfer.HiddenFor
	view.CreatedAt = transfer.CreatedAt
	view.UpdatedAt = transfer.UpdatedAt
	return view
}
