package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/apperrors"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

func ids(views []models.ChatView) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.ID)
	}
	return out
}

func TestCreateChatValidatesParticipants(t *testing.T) {
	f := newFixture("s", "r1", "r2")
	ctx := context.Background()

	_, err := f.chats.Create(ctx, CreateChatInput{SenderID: "ghost", Receivers: []string{"r1"}})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	_, err = f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1", "nobody"}})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
	assert.Empty(t, f.store.chats, "a rejected receiver must not leave a partial chat")

	_, err = f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{" ", ""}})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
}

func TestCreateChatStartsAliveAndNotifies(t *testing.T) {
	f := newFixture("s", "r1", "r2")

	chat, err := f.chats.Create(context.Background(), CreateChatInput{
		SenderID:  " s",
		Receivers: []string{"r1", " r2 ", "r1"},
		Subject:   "hello",
		Content:   "body",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ChatStatusAlive, chat.Status)
	assert.Equal(t, "s", chat.SenderID)
	assert.Equal(t, []string{"r1", "r2"}, []string(chat.Receivers))
	assert.Empty(t, chat.Reader)
	assert.Empty(t, chat.HiddenFor)
	assert.NotNil(t, chat.Attachments)
	assert.ElementsMatch(t, []string{chat.ID + ":r1", chat.ID + ":r2"}, f.notifier.created)
}

func TestMixedCaseUserIDsResolve(t *testing.T) {
	f := newFixture("Alice", "Bob")
	ctx := context.Background()

	chat, err := f.chats.Create(ctx, CreateChatInput{SenderID: "Alice", Receivers: []string{"Bob"}, Subject: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", chat.SenderID)
	assert.Equal(t, []string{"Bob"}, []string(chat.Receivers))

	view, err := f.chats.FindOne(ctx, chat.ID, "Bob")
	require.NoError(t, err)
	assert.Equal(t, models.RoleReceiver, view.Role)
	assert.Equal(t, []string{"Bob"}, []string(f.store.chats[chat.ID].Reader))

	stranger, err := f.chats.FindOne(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RoleNone, stranger.Role)

	_, err = f.chats.Create(ctx, CreateChatInput{SenderID: "alice", Receivers: []string{"Bob"}})
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestDirectLifecycleOpenedFlag(t *testing.T) {
	f := newFixture("s", "r1", "r2")
	ctx := context.Background()

	chat, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1", "r2"}})
	require.NoError(t, err)

	view, err := f.chats.FindOne(ctx, chat.ID, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleReceiver, view.Role)
	assert.True(t, view.IsOpened)

	senderView, err := f.chats.FindOne(ctx, chat.ID, "s")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSender, senderView.Role)
	assert.False(t, senderView.IsOpened)

	_, err = f.chats.FindOne(ctx, chat.ID, "r2")
	require.NoError(t, err)

	senderView, err = f.chats.FindOne(ctx, chat.ID, "s")
	require.NoError(t, err)
	assert.True(t, senderView.IsOpened)

	outsider, err := f.chats.FindOne(ctx, chat.ID, "r3")
	require.NoError(t, err)
	assert.Equal(t, models.RoleNone, outsider.Role)
	assert.False(t, outsider.IsOpened)
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	f := newFixture("s", "r1")
	ctx := context.Background()

	chat, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1"}})
	require.NoError(t, err)

	_, err = f.chats.MarkAsRead(ctx, chat.ID, "r1")
	require.NoError(t, err)
	updated, err := f.chats.MarkAsRead(ctx, chat.ID, " r1 ")
	require.NoError(t, err)

	assert.Equal(t, []string{"r1"}, []string(updated.Reader))
	assert.Equal(t, []string{"r1"}, []string(f.store.chats[chat.ID].Reader))

	_, err = f.chats.MarkAsRead(ctx, "missing", "r1")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestSenderRemoveAndRestore(t *testing.T) {
	f := newFixture("s", "r1", "r2")
	ctx := context.Background()

	chat, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1", "r2"}})
	require.NoError(t, err)

	removal, err := f.chats.Remove(ctx, chat.ID, "s")
	require.NoError(t, err)
	assert.Equal(t, RemovalDeleted, removal)
	assert.Equal(t, models.ChatStatusDeleted, f.store.chats[chat.ID].Status)

	for _, user := range []string{"s", "r1", "r2"} {
		views, err := f.chats.FindByUser(ctx, user)
		require.NoError(t, err)
		assert.NotContains(t, ids(views), chat.ID, user)
	}
	deleted, err := f.chats.FindDeletedByUser(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{chat.ID}, ids(deleted))

	_, err = f.chats.Update(ctx, chat.ID, "s", models.ChatPatch{Content: strPtr("edit")})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	removal, err = f.chats.Remove(ctx, chat.ID, "s")
	require.NoError(t, err)
	assert.Equal(t, RemovalDeleted, removal)

	_, err = f.chats.Restore(ctx, chat.ID, "r1")
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	restored, err := f.chats.Restore(ctx, chat.ID, "s")
	require.NoError(t, err)
	assert.Equal(t, models.ChatStatusAlive, restored.Status)

	for _, user := range []string{"s", "r1", "r2"} {
		views, err := f.chats.FindByUser(ctx, user)
		require.NoError(t, err)
		assert.Contains(t, ids(views), chat.ID, user)
	}

	_, err = f.chats.Restore(ctx, chat.ID, "s")
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))
	assert.Equal(t, []string{"chat_deleted", "chat_restored"}, f.audit.actions)
}

func TestReceiverRemoveHidesLocally(t *testing.T) {
	f := newFixture("s", "r1", "r2")
	ctx := context.Background()

	chat, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1", "r2"}})
	require.NoError(t, err)

	removal, err := f.chats.Remove(ctx, chat.ID, "r1")
	require.NoError(t, err)
	assert.Equal(t, RemovalHidden, removal)
	assert.Equal(t, models.ChatStatusAlive, f.store.chats[chat.ID].Status)

	received, err := f.chats.FindReceivedByUser(ctx, "r1")
	require.NoError(t, err)
	assert.NotContains(t, ids(received), chat.ID)

	received, err = f.chats.FindReceivedByUser(ctx, "r2")
	require.NoError(t, err)
	assert.Contains(t, ids(received), chat.ID)

	sent, err := f.chats.FindSentByUser(ctx, "s")
	require.NoError(t, err)
	assert.Contains(t, ids(sent), chat.ID)

	_, err = f.chats.Remove(ctx, chat.ID, "r3")
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))
}

func TestUpdateIsSenderOnly(t *testing.T) {
	f := newFixture("s", "r1")
	ctx := context.Background()

	chat, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1"}, Subject: "a"})
	require.NoError(t, err)

	_, err = f.chats.Update(ctx, chat.ID, "r1", models.ChatPatch{Subject: strPtr("b")})
	assert.True(t, apperrors.Is(err, apperrors.CodeForbidden))

	_, err = f.chats.Update(ctx, chat.ID, "s", models.ChatPatch{})
	assert.True(t, apperrors.Is(err, apperrors.CodeBadRequest))

	updated, err := f.chats.Update(ctx, chat.ID, "s", models.ChatPatch{Subject: strPtr("b")})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Subject)
}

func TestReceivedListingMergesTransfersNewestFirst(t *testing.T) {
	f := newFixture("s", "r1", "r2")
	ctx := context.Background()

	first, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1"}})
	require.NoError(t, err)
	direct, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r2"}})
	require.NoError(t, err)
	transfer, err := f.transfers.Create(ctx, first.ID, []string{"r2"}, "r1")
	require.NoError(t, err)

	views, err := f.chats.FindReceivedByUser(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.True(t, views[0].IsTransferred)
	assert.Equal(t, transfer.ID, views[0].TransferID)
	assert.Equal(t, "r1", views[0].TransferredBy)
	assert.Equal(t, first.ID, views[0].ID)
	assert.Equal(t, models.RoleReceiver, views[0].Role)
	assert.False(t, views[0].IsOpened)

	assert.False(t, views[1].IsTransferred)
	assert.Equal(t, direct.ID, views[1].ID)
}

func TestCleanupDeletedChatsHonoursRetentionWindow(t *testing.T) {
	f := newFixture("s", "r1")
	ctx := context.Background()

	old, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1"}})
	require.NoError(t, err)
	recent, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1"}})
	require.NoError(t, err)
	alive, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1"}})
	require.NoError(t, err)

	_, err = f.chats.Remove(ctx, old.ID, "s")
	require.NoError(t, err)
	f.clock.Advance(2 * 24 * time.Hour)
	_, err = f.chats.Remove(ctx, recent.ID, "s")
	require.NoError(t, err)
	f.clock.Advance(29 * 24 * time.Hour)

	purged, err := f.chats.CleanupDeletedChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = f.chats.FindOne(ctx, old.ID, "s")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	restored, err := f.chats.Restore(ctx, recent.ID, "s")
	require.NoError(t, err)
	assert.Equal(t, models.ChatStatusAlive, restored.Status)

	_, err = f.chats.FindOne(ctx, alive.ID, "s")
	assert.NoError(t, err)

	purged, err = f.chats.CleanupDeletedChats(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestCleanupDeletedChatsDrainsInBatches(t *testing.T) {
	f := newFixture("s", "r1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		chat, err := f.chats.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1"}})
		require.NoError(t, err)
		_, err = f.chats.Remove(ctx, chat.ID, "s")
		require.NoError(t, err)
	}
	f.clock.Advance(31 * 24 * time.Hour)

	purged, err := f.chats.CleanupDeletedChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), purged)
	assert.Empty(t, f.store.chats)
}

func TestFindOneSwallowsReadMarkerFailure(t *testing.T) {
	chats := new(mocks.ChatRepositoryMock)
	log, hook := test.NewNullLogger()
	svc := NewChatService(chats, new(mocks.TransferRepositoryMock), new(mocks.UserRepositoryMock), nil, nil, log, RetentionPolicy{})

	chat := models.Chat{ID: "c1", SenderID: "s", Receivers: []string{"r1"}, Status: models.ChatStatusAlive}
	chats.On("GetChat", mock.Anything, "c1").Return(chat, nil)
	chats.On("AppendReader", mock.Anything, "c1", "r1").Return(errors.New("db down"))

	view, err := svc.FindOne(context.Background(), "c1", "r1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleReceiver, view.Role)
	assert.False(t, view.IsOpened)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "could not record chat read", hook.LastEntry().Message)
	chats.AssertExpectations(t)
}

func TestChatServiceMapsRepositoryFailures(t *testing.T) {
	ctx := context.Background()
	log, _ := test.NewNullLogger()

	t.Run("create", func(t *testing.T) {
		chats := new(mocks.ChatRepositoryMock)
		users := new(mocks.UserRepositoryMock)
		svc := NewChatService(chats, new(mocks.TransferRepositoryMock), users, nil, nil, log, RetentionPolicy{})

		users.On("GetUser", mock.Anything, "s").Return(models.User{ID: "s"}, nil)
		users.On("GetUsers", mock.Anything, []string{"r1"}).Return([]models.User{{ID: "r1"}}, nil)
		chats.On("CreateChat", mock.Anything, mock.AnythingOfType("models.Chat")).Return(nil, errors.New("insert failed"))

		_, err := svc.Create(ctx, CreateChatInput{SenderID: "s", Receivers: []string{"r1"}})
		assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
	})

	t.Run("get", func(t *testing.T) {
		chats := new(mocks.ChatRepositoryMock)
		svc := NewChatService(chats, new(mocks.TransferRepositoryMock), new(mocks.UserRepositoryMock), nil, nil, log, RetentionPolicy{})
		chats.On("GetChat", mock.Anything, "c1").Return(nil, errors.New("timeout"))

		err := svc.HideMessage(ctx, "c1", "r1")
		assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
	})

	t.Run("purge", func(t *testing.T) {
		chats := new(mocks.ChatRepositoryMock)
		svc := NewChatService(chats, new(mocks.TransferRepositoryMock), new(mocks.UserRepositoryMock), nil, nil, log, RetentionPolicy{BatchSize: 10})
		chats.On("PurgeDeleted", mock.Anything, mock.AnythingOfType("time.Time"), 10).Return(int64(0), errors.New("lock timeout"))

		_, err := svc.CleanupDeletedChats(ctx)
		assert.True(t, apperrors.Is(err, apperrors.CodeInternal))
	})

	t.Run("status race on remove", func(t *testing.T) {
		chats := new(mocks.ChatRepositoryMock)
		audit := &recordingAuditor{}
		svc := NewChatService(chats, new(mocks.TransferRepositoryMock), new(mocks.UserRepositoryMock), nil, audit, log, RetentionPolicy{})
		chat := models.Chat{ID: "c1", SenderID: "s", Receivers: []string{"r1"}, Status: models.ChatStatusAlive}
		chats.On("GetChat", mock.Anything, "c1").Return(chat, nil)
		chats.On("TransitionStatus", mock.Anything, "c1", models.ChatStatusAlive, models.ChatStatusDeleted).
			Return(nil, repositories.ErrStatusConflict)

		removal, err := svc.Remove(ctx, "c1", "s")
		require.NoError(t, err)
		assert.Equal(t, RemovalDeleted, removal)
		assert.Empty(t, audit.actions, "a transition lost to another writer is not audited")
	})

	t.Run("applied remove is audited", func(t *testing.T) {
		chats := new(mocks.ChatRepositoryMock)
		audit := &recordingAuditor{}
		svc := NewChatService(chats, new(mocks.TransferRepositoryMock), new(mocks.UserRepositoryMock), nil, audit, log, RetentionPolicy{})
		chat := models.Chat{ID: "c1", SenderID: "s", Receivers: []string{"r1"}, Status: models.ChatStatusAlive}
		deleted := chat
		deleted.Status = models.ChatStatusDeleted
		chats.On("GetChat", mock.Anything, "c1").Return(chat, nil)
		chats.On("TransitionStatus", mock.Anything, "c1", models.ChatStatusAlive, models.ChatStatusDeleted).
			Return(deleted, nil)

		_, err := svc.Remove(ctx, "c1", "s")
		require.NoError(t, err)
		assert.Equal(t, []string{"chat_deleted"}, audit.actions)
	})
}

func strPtr(s string) *string { return &s }
