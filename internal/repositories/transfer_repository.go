package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrTransferNotFound = errors.New("transfer not found")

const transferColumns = `id, chat_id, sender_id, receivers, reader, hidden_for, created_at, updated_at`

// TransferRepository abstracts chat transfer persistence.
type TransferRepository interface {
	CreateTransfer(ctx context.Context, transfer models.ChatTransfer) (models.ChatTransfer, error)
	GetTransfer(ctx context.Context, transferID string) (models.ChatTransfer, error)
	ListSentByUser(ctx context.Context, userID string) ([]models.ChatTransfer, error)
	ListReceivedByUser(ctx context.Context, userID string) ([]models.ChatTransfer, error)
	AppendReader(ctx context.Context, transferID string, userID string) error
	AppendHiddenFor(ctx context.Context, transferID string, userID string) error
	ReplaceReceivers(ctx context.Context, transferID string, receivers []string) (models.ChatTransfer, error)
	DeleteTransfer(ctx context.Context, transferID string) error
}

// TransferRepo is a sqlx implementation of TransferRepository.
type TransferRepo struct {
	db *sqlx.DB
}

// NewTransferRepo constructs a TransferRepo.
func NewTransferRepo(db *sqlx.DB) *TransferRepo {
	return &TransferRepo{db: db}
}

// CreateTransfer inserts a transfer with empty reader and hidden sets.
func (r *TransferRepo) CreateTransfer(ctx context.Context, transfer models.ChatTransfer) (models.ChatTransfer, error) {
	var created models.ChatTransfer
	query := `INSERT INTO chat_transfers (id, chat_id, sender_id, receivers, reader, hidden_for)
        VALUES ($1, $2, $3, $4, '{}', '{}')
        RETURNING ` + transferColumns
	err := r.db.GetContext(ctx, &created, query, transfer.ID, transfer.ChatID, transfer.SenderID, nonNil(transfer.Receivers))
	return created, err
}

// GetTransfer fetches a transfer by id.
func (r *TransferRepo) GetTransfer(ctx context.Context, transferID string) (models.ChatTransfer, error) {
	var transfer models.ChatTransfer
	err := r.db.GetContext(ctx, &transfer, `SELECT `+transferColumns+` FROM chat_transfers WHERE id=$1`, transferID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatTransfer{}, ErrTransferNotFound
	}
	return transfer, err
}

// ListSentByUser returns transfers the user forwarded and has not hidden.
func (r *TransferRepo) ListSentByUser(ctx context.Context, userID string) ([]models.ChatTransfer, error) {
	var transfers []models.ChatTransfer
	err := r.db.SelectContext(ctx, &transfers, `SELECT `+transferColumns+` FROM chat_transfers
        WHERE sender_id=$1 AND NOT ($1 = ANY(hidden_for))
        ORDER BY created_at DESC`, userID)
	return transfers, err
}

// ListReceivedByUser returns transfers addressed to the user whose original
// chat is still alive.
func (r *TransferRepo) ListReceivedByUser(ctx context.Context, userID string) ([]models.ChatTransfer, error) {
	var transfers []models.ChatTransfer
	err := r.db.SelectContext(ctx, &transfers, `SELECT t.id, t.chat_id, t.sender_id, t.receivers, t.reader, t.hidden_for, t.created_at, t.updated_at
        FROM chat_transfers t
        INNER JOIN chats c ON c.id = t.chat_id
        WHERE $1 = ANY(t.receivers) AND NOT ($1 = ANY(t.hidden_for)) AND c.status='ALIVE'
        ORDER BY t.created_at DESC`, userID)
	return transfers, err
}

// AppendReader adds the user to the transfer's own reader set.
func (r *TransferRepo) AppendReader(ctx context.Context, transferID string, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_transfers SET reader = array_append(reader, $2::text)
        WHERE id=$1 AND NOT ($2::text = ANY(reader))`, transferID, userID)
	return err
}

// AppendHiddenFor adds the user to the transfer's hidden set.
func (r *TransferRepo) AppendHiddenFor(ctx context.Context, transferID string, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chat_transfers SET hidden_for = array_append(hidden_for, $2::text)
        WHERE id=$1 AND NOT ($2::text = ANY(hidden_for))`, transferID, userID)
	return err
}

// ReplaceReceivers overwrites the receiver set.
func (r *TransferRepo) ReplaceReceivers(ctx context.Context, transferID string, receivers []string) (models.ChatTransfer, error) {
	var transfer models.ChatTransfer
	err := r.db.GetContext(ctx, &transfer, `UPDATE chat_transfers SET receivers=$2, updated_at=NOW()
        WHERE id=$1 RETURNING `+transferColumns, transferID, nonNil(receivers))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatTransfer{}, ErrTransferNotFound
	}
	return transfer, err
}

// DeleteTransfer permanently removes a transfer and its replies.
func (r *TransferRepo) DeleteTransfer(ctx context.Context, transferID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_transfers WHERE id=$1`, transferID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrTransferNotFound
	}
	return nil
}
