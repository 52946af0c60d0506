package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository resolves platform identities.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUsers(ctx context.Context, userIDs []string) ([]models.User, error)
}

// UserRepo reads the users table maintained by the identity module.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches one user.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, name, email, role, created_at FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUsers fetches every user whose id is in userIDs. Unknown ids are simply
// absent from the result.
func (r *UserRepo) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, name, email, role, created_at FROM users WHERE id = ANY($1)`, pq.Array(userIDs))
	return users, err
}
