package services

import (
	"context"
	"errors"

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

// TransferService forwards existing chats to new receivers. A transfer
// references its chat; read, hidden and reply state are kept per transfer.
type TransferService struct {
	transfers repositories.TransferRepository
	chats     repositories.ChatRepository
	replies   repositories.ReplyRepository
	users     repositories.UserRepository
	notifier  Notifier
	audit     Auditor
	log       logrus.FieldLogger
}

func NewTransferService(
	transfers repositories.TransferRepository,
	chats repositories.ChatRepository,
	replies repositories.ReplyRepository,
	users repositories.UserRepository,
	notifier Notifier,
	audit Auditor,
	log logrus.FieldLogger,
) *TransferService {
	return &TransferService{
		transfers: transfers,
		chats:     chats,
		replies:   replies,
		users:     users,
		notifier:  notifier,
		audit:     audit,
		log:       log,
	}
}

// Create forwards chatID to receivers on behalf of forwarderID, who must be a
// participant of the original chat.
func (s *TransferService) Create(ctx context.Context, chatID string, receivers []string, forwarderID string) (models.ChatTransfer, error) {
	ctx, span := tracer.Start(ctx, "transfer.create", trace.WithAttributes(attribute.String("chat.id", chatID)))
	defer span.End()

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return models.ChatTransfer{}, err
	}

	forwarderID = visibility.NormalizeID(forwarderID)
	if !visibility.IsParticipant(chat.SenderID, chat.Receivers, forwarderID) {
		return models.ChatTransfer{}, apperrors.Forbidden("only participants of a chat can forward it")
	}
	if chat.Status != models.ChatStatusAlive {
		return models.ChatTransfer{}, apperrors.BadRequest("deleted chats cannot be forwarded", nil)
	}

	forwarder, err := resolveUser(ctx, s.users, forwarderID, "sender")
	if err != nil {
		return models.ChatTransfer{}, err
	}
	receiverIDs := visibility.NormalizeIDs(receivers)
	resolved, err := resolveReceivers(ctx, s.users, receiverIDs)
	if err != nil {
		return models.ChatTransfer{}, err
	}

	transfer, err := s.transfers.CreateTransfer(ctx, models.ChatTransfer{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		SenderID:  forwarderID,
		Receivers: receiverIDs,
	})
	if err != nil {
		return models.ChatTransfer{}, apperrors.Internal("could not create transfer", err)
	}
	span.SetAttributes(attribute.String("transfer.id", transfer.ID))

	observability.IncMessageCreated("transfer")
	s.log.WithFields(logrus.Fields{
		"transfer_id": transfer.ID,
		"chat_id":     chat.ID,
		"sender_id":   forwarderID,
	}).Info("chat transferred")
	if s.notifier != nil {
		s.notifier.ChatTransferred(ctx, transfer, chat, forwarder, resolved)
	}
	return transfer, nil
}

// FindOne composes a transfer with its chat content and reply thread.
// Receivers see public replies and their own private ones; the forwarder sees
// everything. Opening the transfer as a receiver records the read.
func (s *TransferService) FindOne(ctx context.Context, transferID, viewerID string) (models.TransferView, error) {
	ctx, span := tracer.Start(ctx, "transfer.find_one", trace.WithAttributes(attribute.String("transfer.id", transferID)))
	defer span.End()

	transfer, err := s.getTransfer(ctx, transferID)
	if err != nil {
		return models.TransferView{}, err
	}

	viewer := visibility.NormalizeID(viewerID)
	role := visibility.RoleOf(transfer.SenderID, transfer.Receivers, viewer)
	if role == models.RoleNone {
		return models.TransferView{}, apperrors.Forbidden("not a participant of this transfer")
	}

	if role == models.RoleReceiver && !visibility.Contains(transfer.Reader, viewer) {
		if err := s.transfers.AppendReader(ctx, transfer.ID, viewer); err != nil {
			s.log.WithError(err).WithField("transfer_id", transfer.ID).Warn("could not record transfer read")
		} else {
			transfer.Reader = append(transfer.Reader, viewer)
		}
	}

	chat, err := s.chats.GetChat(ctx, transfer.ChatID)
	if errors.Is(err, repositories.ErrChatNotFound) {
		return models.TransferView{}, apperrors.NotFound("chat", err)
	}
	if err != nil {
		return models.TransferView{}, apperrors.Internal("could not load forwarded chat", err)
	}

	replies, err := s.replies.ListByTransfer(ctx, transfer.ID)
	if err != nil {
		return models.TransferView{}, apperrors.Internal("could not load replies", err)
	}
	visible := make([]models.Reply, 0, len(replies))
	for _, r := range replies {
		if role == models.RoleReceiver && !r.IsPublic && visibility.NormalizeID(r.SenderID) != viewer {
			continue
		}
		visible = append(visible, r)
	}

	p := visibility.Project(transfer.SenderID, transfer.Receivers, transfer.Reader, viewer)
	return models.TransferView{
		ChatTransfer: transfer,
		Role:         p.Role,
		IsOpened:     p.IsOpened,
		Chat:         models.ContentOf(chat),
		Replies:      visible,
	}, nil
}

// FindSentByUser lists the transfers the user forwarded.
func (s *TransferService) FindSentByUser(ctx context.Context, userID string) ([]models.ChatView, error) {
	viewer := visibility.NormalizeID(userID)
	transfers, err := s.transfers.ListSentByUser(ctx, viewer)
	if err != nil {
		return nil, apperrors.Internal("could not list sent transfers", err)
	}
	return transferViews(ctx, s.chats, transfers, viewer, s.log)
}

// FindReceivedByUser lists the transfers forwarded to the user.
func (s *TransferService) FindReceivedByUser(ctx context.Context, userID string) ([]models.ChatView, error) {
	viewer := visibility.NormalizeID(userID)
	transfers, err := s.transfers.ListReceivedByUser(ctx, viewer)
	if err != nil {
		return nil, apperrors.Internal("could not list received transfers", err)
	}
	return transferViews(ctx, s.chats, transfers, viewer, s.log)
}

// MarkAsRead adds userID to the transfer's reader set. Unlike FindOne it does
// not check membership.
func (s *TransferService) MarkAsRead(ctx context.Context, transferID, userID string) (models.ChatTransfer, error) {
	transfer, err := s.getTransfer(ctx, transferID)
	if err != nil {
		return models.ChatTransfer{}, err
	}
	reader := visibility.NormalizeID(userID)
	if reader == "" {
		return models.ChatTransfer{}, apperrors.BadRequest("user is required", nil)
	}
	if visibility.Contains(transfer.Reader, reader) {
		return transfer, nil
	}
	if err := s.transfers.AppendReader(ctx, transfer.ID, reader); err != nil {
		return models.ChatTransfer{}, apperrors.Internal("could not mark transfer as read", err)
	}
	transfer.Reader = append(transfer.Reader, reader)
	return transfer, nil
}

// HideMessage removes the transfer from userID's listings.
func (s *TransferService) HideMessage(ctx context.Context, transferID, userID string) error {
	transfer, err := s.getTransfer(ctx, transferID)
	if err != nil {
		return err
	}
	user := visibility.NormalizeID(userID)
	if user == "" {
		return apperrors.BadRequest("user is required", nil)
	}
	if visibility.Contains(transfer.HiddenFor, user) {
		return nil
	}
	if err := s.transfers.AppendHiddenFor(ctx, transfer.ID, user); err != nil {
		return apperrors.Internal("could not hide transfer", err)
	}
	return nil
}

// Update replaces the receiver set. Only the forwarder may change it.
func (s *TransferService) Update(ctx context.Context, transferID, requesterID string, receivers []string) (models.ChatTransfer, error) {
	transfer, err := s.getTransfer(ctx, transferID)
	if err != nil {
		return models.ChatTransfer{}, err
	}
	if visibility.RoleOf(transfer.SenderID, transfer.Receivers, requesterID) != models.RoleSender {
		return models.ChatTransfer{}, apperrors.Forbidden("only the forwarder can edit a transfer")
	}

	receiverIDs := visibility.NormalizeIDs(receivers)
	if _, err := resolveReceivers(ctx, s.users, receiverIDs); err != nil {
		return models.ChatTransfer{}, err
	}

	updated, err := s.transfers.ReplaceReceivers(ctx, transfer.ID, receiverIDs)
	if errors.Is(err, repositories.ErrTransferNotFound) {
		return models.ChatTransfer{}, apperrors.NotFound("transfer", err)
	}
	if err != nil {
		return models.ChatTransfer{}, apperrors.Internal("could not update transfer", err)
	}
	return updated, nil
}

// Remove deletes the transfer when the forwarder asks and hides it when a
// receiver does. The original chat is never affected.
func (s *TransferService) Remove(ctx context.Context, transferID, requesterID string) (Removal, error) {
	transfer, err := s.getTransfer(ctx, transferID)
	if err != nil {
		return "", err
	}

	requester := visibility.NormalizeID(requesterID)
	switch visibility.RoleOf(transfer.SenderID, transfer.Receivers, requester) {
	case models.RoleSender:
		err := s.transfers.DeleteTransfer(ctx, transfer.ID)
		if err != nil && !errors.Is(err, repositories.ErrTransferNotFound) {
			return "", apperrors.Internal("could not delete transfer", err)
		}
		if s.audit != nil {
			s.audit.Emit(ctx, "INFO", "transfer_deleted", transfer.ID, "transfer deleted", requester)
		}
		return RemovalDeleted, nil
	case models.RoleReceiver:
		if err := s.HideMessage(ctx, transfer.ID, requester); err != nil {
			return "", err
		}
		return RemovalHidden, nil
	default:
		return "", apperrors.Forbidden("not a participant of this transfer")
	}
}

// Participants returns the forwarder and receivers of a transfer.
func (s *TransferService) Participants(ctx context.Context, transferID string) ([]string, error) {
	transfer, err := s.getTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}
	return transfer.Participants(), nil
}

func (s *TransferService) getTransfer(ctx context.Context, transferID string) (models.ChatTransfer, error) {
	id := visibility.NormalizeID(transferID)
	if id == "" {
		return models.ChatTransfer{}, apperrors.BadRequest("transfer id is required", nil)
	}
	transfer, err := s.transfers.GetTransfer(ctx, id)
	if errors.Is(err, repositories.ErrTransferNotFound) {
		return models.ChatTransfer{}, apperrors.NotFound("transfer", err)
	}
	if err != nil {
		return models.ChatTransfer{}, apperrors.Internal("could not load transfer", err)
	}
	return transfer, nil
}

func (s *TransferService) getChat(ctx context.Context, chatID string) (models.Chat, error) {
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
