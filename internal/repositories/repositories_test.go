package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

// appendOnce matches a single-statement set append that skips members already present.
func appendOnce(table, column string) string {
	return regexp.QuoteMeta("UPDATE "+table+" SET "+column+" = array_append("+column+", $2::text)") +
		`\s+` + regexp.QuoteMeta("WHERE id=$1 AND NOT ($2::text = ANY("+column+"))")
}

func TestChatSetAppendsAreSingleGuardedStatements(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)
	ctx := context.Background()

	mock.ExpectExec(appendOnce("chats", "reader")).WithArgs("c1", "Bob").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(appendOnce("chats", "reader")).WithArgs("c1", "Bob").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(appendOnce("chats", "hidden_for")).WithArgs("c1", "Bob").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AppendReader(ctx, "c1", "Bob"))
	require.NoError(t, repo.AppendReader(ctx, "c1", "Bob"), "an existing member leaves no row to update")
	require.NoError(t, repo.AppendHiddenFor(ctx, "c1", "Bob"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferSetAppendsAreSingleGuardedStatements(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransferRepo(db)
	ctx := context.Background()

	mock.ExpectExec(appendOnce("chat_transfers", "reader")).WithArgs("t1", "u2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(appendOnce("chat_transfers", "hidden_for")).WithArgs("t1", "u2").WillReturnError(sql.ErrConnDone)

	require.NoError(t, repo.AppendReader(ctx, "t1", "u2"))
	assert.ErrorIs(t, repo.AppendHiddenFor(ctx, "t1", "u2"), sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionStatusConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewChatRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE chats SET status=$3, updated_at=NOW()") + `\s+` + regexp.QuoteMeta("WHERE id=$1 AND status=$2")).
		WithArgs("c1", "ALIVE", "DELETED").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.TransitionStatus(context.Background(), "c1", models.ChatStatusAlive, models.ChatStatusDeleted)
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
