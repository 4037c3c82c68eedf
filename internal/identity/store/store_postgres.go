package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"deploygate/internal/identity/models"
	id "deploygate/pkg/domain"
	"deploygate/pkg/platform/sentinel"
	"deploygate/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresUserStore persists users in the users table.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, user_name, name, password, authorities, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.Conn(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(user.ID),
		user.UserName,
		user.Name,
		user.Password,
		pq.Array(user.Authorities),
		user.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) FindByUserName(ctx context.Context, userName string) (*models.User, error) {
	query := `
		SELECT id, user_name, name, password, authorities, created_at
		FROM users
		WHERE user_name = $1
	`
	var (
		user   models.User
		userID uuid.UUID
	)
	err := tx.Conn(ctx, s.db).QueryRowContext(ctx, query, userName).Scan(
		&userID,
		&user.UserName,
		&user.Name,
		&user.Password,
		pq.Array(&user.Authorities),
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find user by name: %w", err)
	}
	user.ID = id.UserID(userID)
	return &user, nil
}
