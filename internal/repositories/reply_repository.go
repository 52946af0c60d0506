package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrReplyNotFound = errors.New("reply not found")

const replyColumns = `id, content, sender_id, chat_id, transfer_id, is_public, status, created_at, updated_at`

// ReplyRepository defines interactions for thread replies.
type ReplyRepository interface {
	CreateReply(ctx context.Context, reply models.Reply) (models.Reply, error)
	GetReply(ctx context.Context, replyID string) (models.Reply, error)
	ListByChat(ctx context.Context, chatID string) ([]models.Reply, error)
	ListByTransfer(ctx context.Context, transferID string) ([]models.Reply, error)
	UpdateReply(ctx context.Context, replyID string, patch models.ReplyPatch) (models.Reply, error)
	SoftDeleteReply(ctx context.Context, replyID string) error
}

// ReplyRepo is a sqlx-backed repository.
type ReplyRepo struct {
	db *sqlx.DB
}

// NewReplyRepo constructs ReplyRepo.
func NewReplyRepo(db *sqlx.DB) *ReplyRepo {
	return &ReplyRepo{db: db}
}

// CreateReply stores a reply. Exactly one of chat_id and transfer_id is
// written; the other column is an explicit NULL.
func (r *ReplyRepo) CreateReply(ctx context.Context, reply models.Reply) (models.Reply, error) {
	target := reply.Target()
	var created models.Reply
	query := `INSERT INTO replies (id, content, sender_id, chat_id, transfer_id, is_public, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING ` + replyColumns
	err := r.db.GetContext(ctx, &created, query,
		reply.ID, reply.Content, reply.SenderID, target.ChatRef(), target.TransferRef(), reply.IsPublic, models.ReplyStatusAlive)
	return created, err
}

// GetReply retrieves a single reply.
func (r *ReplyRepo) GetReply(ctx context.Context, replyID string) (models.Reply, error) {
	var reply models.Reply
	err := r.db.GetContext(ctx, &reply, `SELECT `+replyColumns+` FROM replies WHERE id=$1`, replyID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reply{}, ErrReplyNotFound
	}
	return reply, err
}

// ListByChat returns alive replies of a chat thread, oldest first.
func (r *ReplyRepo) ListByChat(ctx context.Context, chatID string) ([]models.Reply, error) {
	var replies []models.Reply
	err := r.db.SelectContext(ctx, &replies, `SELECT `+replyColumns+` FROM replies
        WHERE chat_id=$1 AND transfer_id IS NULL AND status='ALIVE'
        ORDER BY created_at ASC`, chatID)
	return replies, err
}

// ListByTransfer returns alive replies of a transfer thread, oldest first.
func (r *ReplyRepo) ListByTransfer(ctx context.Context, transferID string) ([]models.Reply, error) {
	var replies []models.Reply
	err := r.db.SelectContext(ctx, &replies, `SELECT `+replyColumns+` FROM replies
        WHERE transfer_id=$1 AND chat_id IS NULL AND status='ALIVE'
        ORDER BY created_at ASC`, transferID)
	return replies, err
}

// UpdateReply edits an alive reply.
func (r *ReplyRepo) UpdateReply(ctx context.Context, replyID string, patch models.ReplyPatch) (models.Reply, error) {
	var reply models.Reply
	err := r.db.GetContext(ctx, &reply, `UPDATE replies SET
            content = COALESCE($2, content),
            is_public = COALESCE($3, is_public),
            updated_at = NOW()
        WHERE id=$1 AND status='ALIVE'
        RETURNING `+replyColumns, replyID, patch.Content, patch.IsPublic)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reply{}, ErrReplyNotFound
	}
	return reply, err
}

// SoftDeleteReply marks a reply as deleted.
func (r *ReplyRepo) SoftDeleteReply(ctx context.Context, replyID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE replies SET status='DELETED', updated_at=NOW() WHERE id=$1 AND status='ALIVE'`, replyID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrReplyNotFound
	}
	return nil
}
