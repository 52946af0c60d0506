// Package services holds the message state machine: chat lifecycle, transfers
// and reply threads. Services validate, mutate the store and return
// apperrors; realtime fan-out is left to the caller.
package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/visibility"
)

var tracer = otel.Tracer("messaging-service/services")

// Notifier receives the data needed for outbound email. Implementations must
// not block on delivery.
type Notifier interface {
	ChatCreated(ctx context.Context, chat models.Chat, sender models.User, receivers []models.User)
	ChatTransferred(ctx context.Context, transfer models.ChatTransfer, chat models.Chat, forwarder models.User, receivers []models.User)
}

// Auditor records lifecycle transitions.
type Auditor interface {
	Emit(ctx context.Context, level, action, resource, text, userID string)
}

// Removal describes what a remove request did.
type Removal string

const (
	RemovalDeleted Removal = "deleted"
	RemovalHidden  Removal = "hidden"
)

func resolveUser(ctx context.Context, users repositories.UserRepository, userID, label string) (models.User, error) {
	if userID == "" {
		return models.User{}, apperrors.BadRequest(label+" is required", nil)
	}
	user, err := users.GetUser(ctx, userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return models.User{}, apperrors.NotFound(label, err)
	}
	if err != nil {
		return models.User{}, apperrors.Internal("could not resolve "+label, err)
	}
	return user, nil
}

// resolveReceivers requires every id to exist. A single unknown id rejects
// the whole request so that nothing is written.
func resolveReceivers(ctx context.Context, users repositories.UserRepository, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, apperrors.BadRequest("at least one receiver is required", nil)
	}

	found, err := users.GetUsers(ctx, ids)
	if err != nil {
		return nil, apperrors.Internal("could not resolve receivers", err)
	}

	byID := make(map[string]models.User, len(found))
	for _, u := range found {
		byID[visibility.NormalizeID(u.ID)] = u
	}

	resolved := make([]models.User, 0, len(ids))
	var missing []string
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		resolved = append(resolved, u)
	}
	if len(missing) > 0 {
		return nil, apperrors.BadRequest("unknown receivers: "+strings.Join(missing, ", "), nil)
	}
	return resolved, nil
}

// transferViews folds transfers into chat-shaped rows. Transfers whose
// original chat is gone or deleted are skipped.
func transferViews(ctx context.Context, chats repositories.ChatRepository, transfers []models.ChatTransfer, viewerID string, log logrus.FieldLogger) ([]models.ChatView, error) {
	views := make([]models.ChatView, 0, len(transfers))
	cache := map[string]models.Chat{}
	for _, t := range transfers {
		if visibility.Contains(t.HiddenFor, viewerID) {
			continue
		}
		chat, ok := cache[t.ChatID]
		if !ok {
			var err error
			chat, err = chats.GetChat(ctx, t.ChatID)
			if errors.Is(err, repositories.ErrChatNotFound) {
				log.WithFields(logrus.Fields{"transfer_id": t.ID, "chat_id": t.ChatID}).Debug("transfer references a purged chat")
				continue
			}
			if err != nil {
				return nil, apperrors.Internal("could not load forwarded chat", err)
			}
			cache[t.ChatID] = chat
		}
		if chat.Status == models.ChatStatusDeleted {
			continue
		}
		views = append(views, visibility.ProjectTransfer(t, chat, viewerID))
	}
	return views, nil
}

func sortNewestFirst(views []models.ChatView) {
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
