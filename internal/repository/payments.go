package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

const paymentColumns = `id, COALESCE(user_id, ''), order_id, amount, currency, description, course_id, stage_id, status, created_at`

// PostgresPaymentRepository stores payment sessions.
type PostgresPaymentRepository struct {
	DB *sql.DB
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository.
func NewPostgresPaymentRepository(db *sql.DB) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{DB: db}
}

// CreatePayment inserts p. An empty UserID is stored as NULL.
func (r *PostgresPaymentRepository) CreatePayment(ctx context.Context, p models.Payment) error {
	var userID sql.NullString
	if p.UserID != "" {
		userID = sql.NullString{String: p.UserID, Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, order_id, amount, currency, description, course_id, stage_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, userID, p.OrderID, p.Amount, p.Currency, p.Description, p.CourseID, p.StageID, string(p.Status))
	if err != nil {
		return fmt.Errorf("CreatePayment: %w", err)
	}
	return nil
}

// GetPayment returns the payment with id.
func (r *PostgresPaymentRepository) GetPayment(ctx context.Context, id string) (models.Payment, error) {
	var (
		p      models.Payment
		status string
	)
	err := r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.OrderID, &p.Amount, &p.Currency, &p.Description, &p.CourseID, &p.StageID, &status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Payment{}, ErrNotFound
	}
	if err != nil {
		return models.Payment{}, fmt.Errorf("GetPayment: %w", err)
	}
	p.Status = models.PaymentStatus(status)
	return p, nil
}

// TransitionPayment moves a payment from one status to another. It reports
// false when the payment was not in status from.
func (r *PostgresPaymentRepository) TransitionPayment(ctx context.Context, id string, from, to models.PaymentStatus) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE payments SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("TransitionPayment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("TransitionPayment: %w", err)
	}
	return n == 1, nil
}
