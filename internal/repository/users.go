package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

const userColumns = `id, email, password_hash, user_name, role, avatar, open_categories, purchased_stages, created_at`

// PostgresUserRepository stores accounts in the users table.
type PostgresUserRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository with the given database connection.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var (
		a         models.Account
		open, stg pq.Int64Array
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.UserName, &a.Role, &a.Avatar, &open, &stg, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		return models.Account{}, err
	}
	a.OpenCategories = toInts(open)
	a.PurchasedStages = toInts(stg)
	return a, nil
}

// CreateUser inserts a. It returns ErrConflict when the email is taken.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, a models.Account) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, user_name, role, avatar, open_categories, purchased_stages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.Email, a.PasswordHash, a.UserName, a.Role, a.Avatar, toInt64s(a.OpenCategories), toInt64s(a.PurchasedStages))
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("CreateUser: %w", err)
	}
	return nil
}

// GetUserByEmail returns the account registered under email.
func (r *PostgresUserRepository) GetUserByEmail(ctx context.Context, email string) (models.Account, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	a, err := scanAccount(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return a, fmt.Errorf("GetUserByEmail: %w", err)
	}
	return a, err
}

// GetUserByID returns the account with id.
func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id string) (models.Account, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return a, fmt.Errorf("GetUserByID: %w", err)
	}
	return a, err
}

// UpdateUser overwrites the profile and purchase columns of a.ID and returns
// the stored row.
func (r *PostgresUserRepository) UpdateUser(ctx context.Context, a models.Account) (models.Account, error) {
	row := r.DB.QueryRowContext(ctx, `
		UPDATE users
		   SET email = $2, user_name = $3, avatar = $4, open_categories = $5, purchased_stages = $6
		 WHERE id = $1
		RETURNING `+userColumns,
		a.ID, a.Email, a.UserName, a.Avatar, toInt64s(a.OpenCategories), toInt64s(a.PurchasedStages))
	out, err := scanAccount(row)
	switch {
	case isUniqueViolation(err):
		return models.Account{}, ErrConflict
	case err != nil && !errors.Is(err, ErrNotFound):
		return out, fmt.Errorf("UpdateUser: %w", err)
	}
	return out, err
}

// GrantPurchases adds courses and stages to the user's lists in one statement,
// keeping each id once.
func (r *PostgresUserRepository) GrantPurchases(ctx context.Context, userID string, courses, stages []int) (models.Account, error) {
	row := r.DB.QueryRowContext(ctx, `
		UPDATE users
		   SET open_categories  = ARRAY(SELECT DISTINCT unnest(open_categories || $2::integer[]) ORDER BY 1),
		       purchased_stages = ARRAY(SELECT DISTINCT unnest(purchased_stages || $3::integer[]) ORDER BY 1)
		 WHERE id = $1
		RETURNING `+userColumns,
		userID, toInt64s(courses), toInt64s(stages))
	a, err := scanAccount(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return a, fmt.Errorf("GrantPurchases: %w", err)
	}
	return a, err
}
