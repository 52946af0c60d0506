package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type ChatRepositoryMock struct {
	mock.Mock
}

func (m *ChatRepositoryMock) CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	args := m.Called(ctx, chat)
	var created models.Chat
	if val := args.Get(0); val != nil {
		created = val.(models.Chat)
	}
	return created, args.Error(1)
}

func (m *ChatRepositoryMock) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	args := m.Called(ctx, chatID)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) ListAll(ctx context.Context) ([]models.Chat, error) {
	args := m.Called(ctx)
	return chatList(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) ListByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	return chatList(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) ListSentByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	return chatList(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) ListReceivedByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	return chatList(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) ListDeletedByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	return chatList(args.Get(0)), args.Error(1)
}

func (m *ChatRepositoryMock) AppendReader(ctx context.Context, chatID string, userID string) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) AppendHiddenFor(ctx context.Context, chatID string, userID string) error {
	args := m.Called(ctx, chatID, userID)
	return args.Error(0)
}

func (m *ChatRepositoryMock) UpdateContent(ctx context.Context, chatID string, patch models.ChatPatch) (models.Chat, error) {
	args := m.Called(ctx, chatID, patch)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) TransitionStatus(ctx context.Context, chatID string, from, to models.ChatStatus) (models.Chat, error) {
	args := m.Called(ctx, chatID, from, to)
	var chat models.Chat
	if val := args.Get(0); val != nil {
		chat = val.(models.Chat)
	}
	return chat, args.Error(1)
}

func (m *ChatRepositoryMock) PurgeDeleted(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).(int64), args.Error(1)
}

type TransferRepositoryMock struct {
	mock.Mock
}

func (m *TransferRepositoryMock) CreateTransfer(ctx context.Context, transfer models.ChatTransfer) (models.ChatTransfer, error) {
	args := m.Called(ctx, transfer)
	var created models.ChatTransfer
	if val := args.Get(0); val != nil {
		created = val.(models.ChatTransfer)
	}
	return created, args.Error(1)
}

func (m *TransferRepositoryMock) GetTransfer(ctx context.Context, transferID string) (models.ChatTransfer, error) {
	args := m.Called(ctx, transferID)
	var transfer models.ChatTransfer
	if val := args.Get(0); val != nil {
		transfer = val.(models.ChatTransfer)
	}
	return transfer, args.Error(1)
}

func (m *TransferRepositoryMock) ListSentByUser(ctx context.Context, userID string) ([]models.ChatTransfer, error) {
	args := m.Called(ctx, userID)
	return transferList(args.Get(0)), args.Error(1)
}

func (m *TransferRepositoryMock) ListReceivedByUser(ctx context.Context, userID string) ([]models.ChatTransfer, error) {
	args := m.Called(ctx, userID)
	return transferList(args.Get(0)), args.Error(1)
}

func (m *TransferRepositoryMock) AppendReader(ctx context.Context, transferID string, userID string) error {
	args := m.Called(ctx, transferID, userID)
	return args.Error(0)
}

func (m *TransferRepositoryMock) AppendHiddenFor(ctx context.Context, transferID string, userID string) error {
	args := m.Called(ctx, transferID, userID)
	return args.Error(0)
}

func (m *TransferRepositoryMock) ReplaceReceivers(ctx context.Context, transferID string, receivers []string) (models.ChatTransfer, error) {
	args := m.Called(ctx, transferID, receivers)
	var transfer models.ChatTransfer
	if val := args.Get(0); val != nil {
		transfer = val.(models.ChatTransfer)
	}
	return transfer, args.Error(1)
}

func (m *TransferRepositoryMock) DeleteTransfer(ctx context.Context, transferID string) error {
	args := m.Called(ctx, transferID)
	return args.Error(0)
}

type ReplyRepositoryMock struct {
	mock.Mock
}

func (m *ReplyRepositoryMock) CreateReply(ctx context.Context, reply models.Reply) (models.Reply, error) {
	args := m.Called(ctx, reply)
	var created models.Reply
	if val := args.Get(0); val != nil {
		created = val.(models.Reply)
	}
	return created, args.Error(1)
}

func (m *ReplyRepositoryMock) GetReply(ctx context.Context, replyID string) (models.Reply, error) {
	args := m.Called(ctx, replyID)
	var reply models.Reply
	if val := args.Get(0); val != nil {
		reply = val.(models.Reply)
	}
	return reply, args.Error(1)
}

func (m *ReplyRepositoryMock) ListByChat(ctx context.Context, chatID string) ([]models.Reply, error) {
	args := m.Called(ctx, chatID)
	return replyList(args.Get(0)), args.Error(1)
}

func (m *ReplyRepositoryMock) ListByTransfer(ctx context.Context, transferID string) ([]models.Reply, error) {
	args := m.Called(ctx, transferID)
	return replyList(args.Get(0)), args.Error(1)
}

func (m *ReplyRepositoryMock) UpdateReply(ctx context.Context, replyID string, patch models.ReplyPatch) (models.Reply, error) {
	args := m.Called(ctx, replyID, patch)
	var reply models.Reply
	if val := args.Get(0); val != nil {
		reply = val.(models.Reply)
	}
	return reply, args.Error(1)
}

func (m *ReplyRepositoryMock) SoftDeleteReply(ctx context.Context, replyID string) error {
	args := m.Called(ctx, replyID)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID string) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	args := m.Called(ctx, userIDs)
	var users []models.User
	if val := args.Get(0); val != nil {
		users = val.([]models.User)
	}
	return users, args.Error(1)
}

// EventPublisherMock stands in for the AMQP publisher.
type EventPublisherMock struct {
	mock.Mock
}

func (m *EventPublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

// RoutingKeys lists the routing keys of every recorded Publish call in order.
func (m *EventPublisherMock) RoutingKeys() []string {
	keys := make([]string, 0, len(m.Calls))
	for _, call := range m.Calls {
		if call.Method == "Publish" {
			keys = append(keys, call.Arguments.String(1))
		}
	}
	return keys
}

func chatList(val any) []models.Chat {
	if val == nil {
		return nil
	}
	return val.([]models.Chat)
}

func transferList(val any) []models.ChatTransfer {
	if val == nil {
		return nil
	}
	return val.([]models.ChatTransfer)
}

func replyList(val any) []models.Reply {
	if val == nil {
		return nil
	}
	return val.([]models.Reply)
}

var (
	_ repositories.ChatRepository     = (*ChatRepositoryMock)(nil)
	_ repositories.TransferRepository = (*TransferRepositoryMock)(nil)
	_ repositories.ReplyRepository    = (*ReplyRepositoryMock)(nil)
	_ repositories.UserRepository     = (*UserRepositoryMock)(nil)
)
