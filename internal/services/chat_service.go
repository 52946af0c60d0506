package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/visibility"
)

// RetentionPolicy controls how long soft-deleted chats are kept.
type RetentionPolicy struct {
	Window    time.Duration
	BatchSize int
}

// CreateChatInput is the payload of a new chat.
type CreateChatInput struct {
	SenderID    string
	Receivers   []string
	Subject     string
	Content     string
	Attachments []string
}

type ChatService struct {
	chats     repositories.ChatRepository
	transfers repositories.TransferRepository
	users     repositories.UserRepository
	notifier  Notifier
	audit     Auditor
	log       logrus.FieldLogger
	retention RetentionPolicy
	now       func() time.Time
}

func NewChatService(
	chats repositories.ChatRepository,
	transfers repositories.TransferRepository,
	users repositories.UserRepository,
	notifier Notifier,
	audit Auditor,
	log logrus.FieldLogger,
	retention RetentionPolicy,
) *ChatService {
	if retention.Window <= 0 {
		retention.Window = 30 * 24 * time.Hour
	}
	if retention.BatchSize <= 0 {
		retention.BatchSize = 500
	}
	return &ChatService{
		chats:     chats,
		transfers: transfers,
		users:     users,
		notifier:  notifier,
		audit:     audit,
		log:       log,
		retention: retention,
		now:       time.Now,
	}
}

// Create validates the sender and every receiver, stores the chat and queues
// email notifications.
func (s *ChatService) Create(ctx context.Context, in CreateChatInput) (models.Chat, error) {
	ctx, span := tracer.Start(ctx, "chat.create")
	defer span.End()

	senderID := visibility.NormalizeID(in.SenderID)
	sender, err := resolveUser(ctx, s.users, senderID, "sender")
	if err != nil {
		return models.Chat{}, err
	}

	receiverIDs := visibility.NormalizeIDs(in.Receivers)
	receivers, err := resolveReceivers(ctx, s.users, receiverIDs)
	if err != nil {
		return models.Chat{}, err
	}

	chat, err := s.chats.CreateChat(ctx, models.Chat{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		Receivers:   receiverIDs,
		Subject:     in.Subject,
		Content:     in.Content,
		Attachments: nonNilStrings(in.Attachments),
	})
	if err != nil {
		return models.Chat{}, apperrors.Internal("could not create chat", err)
	}
	span.SetAttributes(attribute.String("chat.id", chat.ID), attribute.Int("chat.receivers", len(receiverIDs)))

	observability.IncMessageCreated("chat")
	s.log.WithFields(logrus.Fields{"chat_id": chat.ID, "sender_id": senderID}).Info("chat created")
	if s.notifier != nil {
		s.notifier.ChatCreated(ctx, chat, sender, receivers)
	}
	return chat, nil
}

// FindAll returns every stored chat regardless of status.
func (s *ChatService) FindAll(ctx context.Context) ([]models.Chat, error) {
	chats, err := s.chats.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Internal("could not list chats", err)
	}
	return nonNilChats(chats), nil
}

// FindByUser lists the alive chats the user sent or received.
func (s *ChatService) FindByUser(ctx context.Context, userID string) ([]models.ChatView, error) {
	viewer := visibility.NormalizeID(userID)
	chats, err := s.chats.ListByUser(ctx, viewer)
	if err != nil {
		return nil, apperrors.Internal("could not list chats", err)
	}
	return s.project(chats, viewer), nil
}

// FindSentByUser lists the alive chats the user sent.
func (s *ChatService) FindSentByUser(ctx context.Context, userID string) ([]models.ChatView, error) {
	viewer := visibility.NormalizeID(userID)
	chats, err := s.chats.ListSentByUser(ctx, viewer)
	if err != nil {
		return nil, apperrors.Internal("could not list sent chats", err)
	}
	return s.project(chats, viewer), nil
}

// FindReceivedByUser merges the chats addressed to the user with the
// transfers forwarded to them, newest first.
func (s *ChatService) FindReceivedByUser(ctx context.Context, userID string) ([]models.ChatView, error) {
	ctx, span := tracer.Start(ctx, "chat.find_received")
	defer span.End()

	viewer := visibility.NormalizeID(userID)
	chats, err := s.chats.ListReceivedByUser(ctx, viewer)
	if err != nil {
		return nil, apperrors.Internal("could not list received chats", err)
	}
	transfers, err := s.transfers.ListReceivedByUser(ctx, viewer)
	if err != nil {
		return nil, apperrors.Internal("could not list received transfers", err)
	}

	views := s.project(chats, viewer)
	forwarded, err := transferViews(ctx, s.chats, transfers, viewer, s.log)
	if err != nil {
		return nil, err
	}
	views = append(views, forwarded...)
	sortNewestFirst(views)
	return views, nil
}

// FindDeletedByUser lists the user's own soft-deleted chats, the ones Restore
// can still bring back.
func (s *ChatService) FindDeletedByUser(ctx context.Context, userID string) ([]models.ChatView, error) {
	viewer := visibility.NormalizeID(userID)
	chats, err := s.chats.ListDeletedByUser(ctx, viewer)
	if err != nil {
		return nil, apperrors.Internal("could not list deleted chats", err)
	}
	views := make([]models.ChatView, 0, len(chats))
	for _, chat := range chats {
		views = append(views, visibility.ProjectChat(chat, viewer))
	}
	return views, nil
}

// FindOne returns the chat projected for viewerID and records the read.
// Membership is not checked: any caller that knows the id may open it.
func (s *ChatService) FindOne(ctx context.Context, chatID, viewerID string) (models.ChatView, error) {
	ctx, span := tracer.Start(ctx, "chat.find_one", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return models.ChatView{}, err
	}

	viewer := visibility.NormalizeID(viewerID)
	if viewer != "" && !visibility.Contains(chat.Reader, viewer) {
		if err := s.chats.AppendReader(ctx, chat.ID, viewer); err != nil {
			s.log.WithError(err).WithField("chat_id", chat.ID).Warn("could not record chat read")
		} else {
			chat.Reader = append(chat.Reader, viewer)
		}
	}
	return visibility.ProjectChat(chat, viewer), nil
}

// MarkAsRead adds userID to the chat's reader set and returns the updated chat.
func (s *ChatService) MarkAsRead(ctx context.Context, chatID, userID string) (models.Chat, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	reader := visibility.NormalizeID(userID)
	if reader == "" {
		return models.Chat{}, apperrors.BadRequest("user is required", nil)
	}
	if visibility.Contains(chat.Reader, reader) {
		return chat, nil
	}
	if err := s.chats.AppendReader(ctx, chat.ID, reader); err != nil {
		return models.Chat{}, apperrors.Internal("could not mark chat as read", err)
	}
	chat.Reader = append(chat.Reader, reader)
	return chat, nil
}

// HideMessage removes the chat from userID's listings without touching anyone else's.
func (s *ChatService) HideMessage(ctx context.Context, chatID, userID string) error {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return err
	}
	user := visibility.NormalizeID(userID)
	if user == "" {
		return apperrors.BadRequest("user is required", nil)
	}
	if visibility.Contains(chat.HiddenFor, user) {
		return nil
	}
	if err := s.chats.AppendHiddenFor(ctx, chat.ID, user); err != nil {
		return apperrors.Internal("could not hide chat", err)
	}
	return nil
}

// Update edits subject, content or attachments. Only the sender of an alive
// chat may do so.
func (s *ChatService) Update(ctx context.Context, chatID, requesterID string, patch models.ChatPatch) (models.Chat, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	if visibility.RoleOf(chat.SenderID, chat.Receivers, requesterID) != models.RoleSender {
		return models.Chat{}, apperrors.Forbidden("only the sender can edit a chat")
	}
	if chat.Status != models.ChatStatusAlive {
		return models.Chat{}, apperrors.BadRequest("deleted chats cannot be edited", nil)
	}
	if patch.Empty() {
		return models.Chat{}, apperrors.BadRequest("nothing to update", nil)
	}

	updated, err := s.chats.UpdateContent(ctx, chat.ID, patch)
	if errors.Is(err, repositories.ErrStatusConflict) {
		return models.Chat{}, apperrors.BadRequest("deleted chats cannot be edited", err)
	}
	if err != nil {
		return models.Chat{}, apperrors.Internal("could not update chat", err)
	}
	return updated, nil
}

// Remove soft-deletes the chat when the requester is its sender and hides it
// for the requester when they are a receiver. Soft deletion keeps the row for
// the retention window and makes it restorable.
func (s *ChatService) Remove(ctx context.Context, chatID, requesterID string) (Removal, error) {
	ctx, span := tracer.Start(ctx, "chat.remove", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return "", err
	}

	requester := visibility.NormalizeID(requesterID)
	switch visibility.RoleOf(chat.SenderID, chat.Receivers, requester) {
	case models.RoleSender:
		if chat.Status == models.ChatStatusDeleted {
			return RemovalDeleted, nil
		}
		_, err := s.chats.TransitionStatus(ctx, chat.ID, models.ChatStatusAlive, models.ChatStatusDeleted)
		if errors.Is(err, repositories.ErrStatusConflict) {
			return RemovalDeleted, nil
		}
		if err != nil {
			return "", apperrors.Internal("could not delete chat", err)
		}
		s.emit(ctx, "chat_deleted", chat.ID, "chat moved to deleted", requester)
		return RemovalDeleted, nil
	case models.RoleReceiver:
		if err := s.HideMessage(ctx, chat.ID, requester); err != nil {
			return "", err
		}
		return RemovalHidden, nil
	default:
		return "", apperrors.Forbidden("not a participant of this chat")
	}
}

// Restore brings a soft-deleted chat back to alive.
func (s *ChatService) Restore(ctx context.Context, chatID, requesterID string) (models.Chat, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, err
	}
	requester := visibility.NormalizeID(requesterID)
	if visibility.RoleOf(chat.SenderID, chat.Receivers, requester) != models.RoleSender {
		return models.Chat{}, apperrors.Forbidden("only the sender can restore a chat")
	}
	if chat.Status != models.ChatStatusDeleted {
		return models.Chat{}, apperrors.BadRequest("chat is not deleted", nil)
	}

	restored, err := s.chats.TransitionStatus(ctx, chat.ID, models.ChatStatusDeleted, models.ChatStatusAlive)
	if errors.Is(err, repositories.ErrStatusConflict) {
		return models.Chat{}, apperrors.BadRequest("chat is not deleted", err)
	}
	if err != nil {
		return models.Chat{}, apperrors.Internal("could not restore chat", err)
	}
	s.emit(ctx, "chat_restored", chat.ID, "chat restored", requester)
	return restored, nil
}

// CleanupDeletedChats purges chats that have been deleted for longer than
// the retention window. It works in bounded batches until a short batch
// signals that nothing eligible is left.
func (s *ChatService) CleanupDeletedChats(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "chat.cleanup_deleted")
	defer span.End()

	cutoff := s.now().Add(-s.retention.Window)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := s.chats.PurgeDeleted(ctx, cutoff, s.retention.BatchSize)
		total += n
		if err != nil {
			return total, apperrors.Internal("could not purge deleted chats", err)
		}
		if n < int64(s.retention.BatchSize) {
			break
		}
	}

	span.SetAttributes(attribute.Int64("chats.purged", total))
	if total > 0 {
		s.log.WithFields(logrus.Fields{"purged": total, "cutoff": cutoff}).Info("deleted chats purged")
		s.emit(ctx, "chats_purged", "", "deleted chats purged by retention", "")
	}
	return total, nil
}

// Participants returns the sender and receivers of a chat.
func (s *ChatService) Participants(ctx context.Context, chatID string) ([]string, error) {
	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return chat.Participants(), nil
}

func (s *ChatService) getChat(ctx context.Context, chatID string) (models.Chat, error) {
	id := visibility.NormalizeID(chatID)
	if id == "" {
		return models.Chat{}, apperrors.BadRequest("chat id is required", nil)
	}
	chat, err := s.chats.GetChat(ctx, id)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.Chat{}, apperrors.NotFound("chat", err)
	}
	if err != nil {
		return models.Chat{}, apperrors.Internal("could not load chat", err)
	}
	return chat, nil
}

func (s *ChatService) project(chats []models.Chat, viewer string) []models.ChatView {
	views := make([]models.ChatView, 0, len(chats))
	for _, chat := range chats {
		if chat.Status != models.ChatStatusAlive || visibility.Contains(chat.HiddenFor, viewer) {
			continue
		}
		views = append(views, visibility.ProjectChat(chat, viewer))
	}
	return views
}

func (s *ChatService) emit(ctx context.Context, action, resource, text, userID string) {
	if s.audit == nil {
		return
	}
	s.audit.Emit(ctx, "INFO", action, resource, text, userID)
}

func nonNilChats(chats []models.Chat) []models.Chat {
	if chats == nil {
		return []models.Chat{}
	}
	return chats
}
