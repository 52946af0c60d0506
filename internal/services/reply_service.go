package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/visibility"
)

// CreateReplyInput is the payload of a new reply. Exactly one of ChatID and
// TransferID must be set. IsPublic defaults to true.
type CreateReplyInput struct {
	Content    string
	SenderID   string
	ChatID     string
	TransferID string
	IsPublic   *bool
}

type ReplyService struct {
	replies   repositories.ReplyRepository
	chats     repositories.ChatRepository
	transfers repositories.TransferRepository
	users     repositories.UserRepository
	log       logrus.FieldLogger
}

func NewReplyService(
	replies repositories.ReplyRepository,
	chats repositories.ChatRepository,
	transfers repositories.TransferRepository,
	users repositories.UserRepository,
	log logrus.FieldLogger,
) *ReplyService {
	return &ReplyService{
		replies:   replies,
		chats:     chats,
		transfers: transfers,
		users:     users,
		log:       log,
	}
}

// Create attaches a reply to a chat thread or a transfer thread.
func (s *ReplyService) Create(ctx context.Context, in CreateReplyInput) (models.Reply, error) {
	ctx, span := tracer.Start(ctx, "reply.create")
	defer span.End()

	target, err := models.NewReplyTarget(visibility.NormalizeID(in.ChatID), visibility.NormalizeID(in.TransferID))
	if err != nil {
		return models.Reply{}, apperrors.BadRequest(err.Error(), err)
	}
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return models.Reply{}, apperrors.BadRequest("content is required", nil)
	}

	if err := s.ensureTarget(ctx, target); err != nil {
		return models.Reply{}, err
	}
	senderID := visibility.NormalizeID(in.SenderID)
	if _, err := resolveUser(ctx, s.users, senderID, "sender"); err != nil {
		return models.Reply{}, err
	}

	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	reply, err := s.replies.CreateReply(ctx, models.Reply{
		ID:         uuid.NewString(),
		Content:    content,
		SenderID:   senderID,
		ChatID:     target.ChatRef(),
		TransferID: target.TransferRef(),
		IsPublic:   isPublic,
		Status:     models.ReplyStatusAlive,
	})
	if err != nil {
		return models.Reply{}, apperrors.Internal("could not create reply", err)
	}

	observability.IncMessageCreated("reply")
	s.log.WithFields(logrus.Fields{
		"reply_id":  reply.ID,
		"target":    string(target.Kind()),
		"target_id": target.ID(),
	}).Debug("reply created")
	return reply, nil
}

// FindByChat returns the alive replies on a chat thread, oldest first.
func (s *ReplyService) FindByChat(ctx context.Context, chatID string) ([]models.Reply, error) {
	target := models.ChatTarget(visibility.NormalizeID(chatID))
	if err := s.ensureTarget(ctx, target); err != nil {
		return nil, err
	}
	replies, err := s.replies.ListByChat(ctx, target.ID())
	if err != nil {
		return nil, apperrors.Internal("could not list replies", err)
	}
	return nonNilReplies(replies), nil
}

// FindByTransferChat returns the alive replies on a transfer thread, oldest
// first. Only the forwarder and the transfer's receivers may read it.
func (s *ReplyService) FindByTransferChat(ctx context.Context, transferID, viewerID string) ([]models.Reply, error) {
	id := visibility.NormalizeID(transferID)
	if id == "" {
		return nil, apperrors.BadRequest("transfer id is required", nil)
	}
	transfer, err := s.transfers.GetTransfer(ctx, id)
	if errors.Is(err, repositories.ErrTransferNotFound) {
		return nil, apperrors.NotFound("transfer", err)
	}
	if err != nil {
		return nil, apperrors.Internal("could not load transfer", err)
	}
	if !visibility.IsParticipant(transfer.SenderID, transfer.Receivers, viewerID) {
		return nil, apperrors.Forbidden("not a participant of this transfer")
	}

	replies, err := s.replies.ListByTransfer(ctx, transfer.ID)
	if err != nil {
		return nil, apperrors.Internal("could not list replies", err)
	}
	return nonNilReplies(replies), nil
}

// Update edits the content or visibility of a reply. Only its author may.
func (s *ReplyService) Update(ctx context.Context, replyID, requesterID string, patch models.ReplyPatch) (models.Reply, error) {
	reply, err := s.ownReply(ctx, replyID, requesterID)
	if err != nil {
		return models.Reply{}, err
	}
	if reply.Status != models.ReplyStatusAlive {
		return models.Reply{}, apperrors.BadRequest("deleted replies cannot be edited", nil)
	}
	if patch.Content == nil && patch.IsPublic == nil {
		return models.Reply{}, apperrors.BadRequest("nothing to update", nil)
	}
	if patch.Content != nil {
		trimmed := strings.TrimSpace(*patch.Content)
		if trimmed == "" {
			return models.Reply{}, apperrors.BadRequest("content is required", nil)
		}
		patch.Content = &trimmed
	}

	updated, err := s.replies.UpdateReply(ctx, reply.ID, patch)
	if errors.Is(err, repositories.ErrReplyNotFound) {
		return models.Reply{}, apperrors.BadRequest("deleted replies cannot be edited", err)
	}
	if err != nil {
		return models.Reply{}, apperrors.Internal("could not update reply", err)
	}
	return updated, nil
}

// Remove soft-deletes a reply. Removing an already deleted reply succeeds.
func (s *ReplyService) Remove(ctx context.Context, replyID, requesterID string) error {
	reply, err := s.ownReply(ctx, replyID, requesterID)
	if err != nil {
		return err
	}
	if reply.Status == models.ReplyStatusDeleted {
		return nil
	}
	err = s.replies.SoftDeleteReply(ctx, reply.ID)
	if err != nil && !errors.Is(err, repositories.ErrReplyNotFound) {
		return apperrors.Internal("could not delete reply", err)
	}
	return nil
}

func (s *ReplyService) ownReply(ctx context.Context, replyID, requesterID string) (models.Reply, error) {
	id := visibility.NormalizeID(replyID)
	if id == "" {
		return models.Reply{}, apperrors.BadRequest("reply id is required", nil)
	}
	reply, err := s.replies.GetReply(ctx, id)
	if errors.Is(err, repositories.ErrReplyNotFound) {
		return models.Reply{}, apperrors.NotFound("reply", err)
	}
	if err != nil {
		return models.Reply{}, apperrors.Internal("could not load reply", err)
	}
	if visibility.NormalizeID(reply.SenderID) != visibility.NormalizeID(requesterID) {
		return models.Reply{}, apperrors.Forbidden("only the author can change a reply")
	}
	return reply, nil
}

func (s *ReplyService) ensureTarget(ctx context.Context, target models.ReplyTarget) error {
	if !target.Valid() {
		return apperrors.BadRequest(models.ErrReplyTargetMissing.Error(), models.ErrReplyTargetMissing)
	}
	switch target.Kind() {
	case models.ReplyTargetChat:
		_, err := s.chats.GetChat(ctx, target.ID())
		if errors.Is(err, repositories.ErrChatNotFound) {
			return apperrors.NotFound("chat", err)
		}
		if err != nil {
			return apperrors.Internal("could not load chat", err)
		}
	case models.ReplyTargetTransfer:
		_, err := s.transfers.GetTransfer(ctx, target.ID())
		if errors.Is(err, repositories.ErrTransferNotFound) {
			return apperrors.NotFound("transfer", err)
		}
		if err != nil {
			return apperrors.Internal("could not load transfer", err)
		}
	}
	return nil
}

func nonNilReplies(replies []models.Reply) []models.Reply {
	if replies == nil {
		return []models.Reply{}
	}
	return replies
}
