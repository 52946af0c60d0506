package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	// ErrStatusConflict means a guarded status transition found the row in another state.
	ErrStatusConflict = errors.New("chat status changed concurrently")
)

const chatColumns = `id, sender_id, receivers, subject, content, attachments, reader, hidden_for, status, created_at, updated_at`

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error)
	GetChat(ctx context.Context, chatID string) (models.Chat, error)
	ListAll(ctx context.Context) ([]models.Chat, error)
	ListByUser(ctx context.Context, userID string) ([]models.Chat, error)
	ListSentByUser(ctx context.Context, userID string) ([]models.Chat, error)
	ListReceivedByUser(ctx context.Context, userID string) ([]models.Chat, error)
	ListDeletedByUser(ctx context.Context, userID string) ([]models.Chat, error)
	AppendReader(ctx context.Context, chatID string, userID string) error
	AppendHiddenFor(ctx context.Context, chatID string, userID string) error
	UpdateContent(ctx context.Context, chatID string, patch models.ChatPatch) (models.Chat, error)
	TransitionStatus(ctx context.Context, chatID string, from, to models.ChatStatus) (models.Chat, error)
	PurgeDeleted(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateChat inserts a chat and returns the stored row.
func (r *ChatRepo) CreateChat(ctx context.Context, chat models.Chat) (models.Chat, error) {
	var created models.Chat
	query := `INSERT INTO chats (id, sender_id, receivers, subject, content, attachments, reader, hidden_for, status)
        VALUES ($1, $2, $3, $4, $5, $6, '{}', '{}', $7)
        RETURNING ` + chatColumns
	err := r.db.GetContext(ctx, &created, query,
		chat.ID, chat.SenderID, nonNil(chat.Receivers), chat.Subject, chat.Content, nonNil(chat.Attachments), models.ChatStatusAlive)
	return created, err
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID string) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// ListAll returns every chat, newest first.
func (r *ChatRepo) ListAll(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, `SELECT `+chatColumns+` FROM chats ORDER BY created_at DESC`)
	return chats, err
}

// ListByUser returns alive chats the user sent or received and has not hidden.
func (r *ChatRepo) ListByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats
        WHERE (sender_id=$1 OR $1 = ANY(receivers))
        AND status='ALIVE' AND NOT ($1 = ANY(hidden_for))
        ORDER BY created_at DESC`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID)
	return chats, err
}

// ListSentByUser returns alive chats sent by the user.
func (r *ChatRepo) ListSentByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats
        WHERE sender_id=$1 AND status='ALIVE' AND NOT ($1 = ANY(hidden_for))
        ORDER BY created_at DESC`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID)
	return chats, err
}

// ListReceivedByUser returns alive chats addressed to the user.
func (r *ChatRepo) ListReceivedByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats
        WHERE $1 = ANY(receivers) AND status='ALIVE' AND NOT ($1 = ANY(hidden_for))
        ORDER BY created_at DESC`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID)
	return chats, err
}

// ListDeletedByUser returns soft-deleted chats the user sent, newest deletion first.
func (r *ChatRepo) ListDeletedByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats
        WHERE sender_id=$1 AND status='DELETED' AND NOT ($1 = ANY(hidden_for))
        ORDER BY updated_at DESC`
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats, query, userID)
	return chats, err
}

// AppendReader adds the user to the reader set in a single statement.
// It is a no-op when the user is already present.
func (r *ChatRepo) AppendReader(ctx context.Context, chatID string, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET reader = array_append(reader, $2::text)
        WHERE id=$1 AND NOT ($2::text = ANY(reader))`, chatID, userID)
	return err
}

// AppendHiddenFor adds the user to the hidden set in a single statement.
func (r *ChatRepo) AppendHiddenFor(ctx context.Context, chatID string, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET hidden_for = array_append(hidden_for, $2::text)
        WHERE id=$1 AND NOT ($2::text = ANY(hidden_for))`, chatID, userID)
	return err
}

// UpdateContent applies a patch to an alive chat. A deleted chat yields ErrStatusConflict.
func (r *ChatRepo) UpdateContent(ctx context.Context, chatID string, patch models.ChatPatch) (models.Chat, error) {
	var attachments interface{}
	if patch.Attachments != nil {
		attachments = pq.StringArray(patch.Attachments)
	}

	var chat models.Chat
	query := `UPDATE chats SET
            subject = COALESCE($2, subject),
            content = COALESCE($3, content),
            attachments = COALESCE($4, attachments),
            updated_at = NOW()
        WHERE id=$1 AND status='ALIVE'
        RETURNING ` + chatColumns
	err := r.db.GetContext(ctx, &chat, query, chatID, patch.Subject, patch.Content, attachments)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrStatusConflict
	}
	return chat, err
}

// TransitionStatus moves a chat from one status to another. The update only
// applies when the row is still in the from state.
func (r *ChatRepo) TransitionStatus(ctx context.Context, chatID string, from, to models.ChatStatus) (models.Chat, error) {
	var chat models.Chat
	query := `UPDATE chats SET status=$3, updated_at=NOW()
        WHERE id=$1 AND status=$2
        RETURNING ` + chatColumns
	err := r.db.GetContext(ctx, &chat, query, chatID, from, to)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrStatusConflict
	}
	return chat, err
}

// PurgeDeleted permanently removes up to limit chats deleted before cutoff.
// Transfers and replies go with them through ON DELETE CASCADE.
func (r *ChatRepo) PurgeDeleted(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id IN (
            SELECT id FROM chats WHERE status='DELETED' AND updated_at < $1
            ORDER BY updated_at LIMIT $2 FOR UPDATE SKIP LOCKED)`, cutoff, limit)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nonNil(ids []string) pq.StringArray {
	if ids == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(ids)
}
