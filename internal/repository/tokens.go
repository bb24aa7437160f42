package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresTokenRepository stores opaque session tokens.
type PostgresTokenRepository struct {
	DB *sql.DB
}

// NewPostgresTokenRepository creates a new PostgresTokenRepository.
func NewPostgresTokenRepository(db *sql.DB) *PostgresTokenRepository {
	return &PostgresTokenRepository{DB: db}
}

// CreateToken stores token for userID until expiresAt.
func (r *PostgresTokenRepository) CreateToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO tokens (token, user_id, expires_at) VALUES ($1, $2, $3)`,
		token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("CreateToken: %w", err)
	}
	return nil
}

// UserIDByToken returns the owner of a token that has not expired at now.
func (r *PostgresTokenRepository) UserIDByToken(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	err := r.DB.QueryRowContext(ctx,
		`SELECT user_id FROM tokens WHERE token = $1 AND expires_at > $2`,
		token, now).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("UserIDByToken: %w", err)
	}
	return userID, nil
}

// DeleteToken removes token. Deleting an unknown token is not an error.
func (r *PostgresTokenRepository) DeleteToken(ctx context.Context, token string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM tokens WHERE token = $1`, token); err != nil {
		return fmt.Errorf("DeleteToken: %w", err)
	}
	return nil
}
