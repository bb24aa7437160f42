package service

import (
	"context"
	"time"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

type mockUserRepo struct {
	CreateUserFunc     func(ctx context.Context, a models.Account) error
	GetUserByEmailFunc func(ctx context.Context, email string) (models.Account, error)
	GetUserByIDFunc    func(ctx context.Context, id string) (models.Account, error)
	UpdateUserFunc     func(ctx context.Context, a models.Account) (models.Account, error)
	GrantPurchasesFunc func(ctx context.Context, userID string, courses, stages []int) (models.Account, error)
}

func (m *mockUserRepo) CreateUser(ctx context.Context, a models.Account) error {
	return m.CreateUserFunc(ctx, a)
}
func (m *mockUserRepo) GetUserByEmail(ctx context.Context, email string) (models.Account, error) {
	return m.GetUserByEmailFunc(ctx, email)
}
func (m *mockUserRepo) GetUserByID(ctx context.Context, id string) (models.Account, error) {
	return m.GetUserByIDFunc(ctx, id)
}
func (m *mockUserRepo) UpdateUser(ctx context.Context, a models.Account) (models.Account, error) {
	return m.UpdateUserFunc(ctx, a)
}
func (m *mockUserRepo) GrantPurchases(ctx context.Context, userID string, courses, stages []int) (models.Account, error) {
	return m.GrantPurchasesFunc(ctx, userID, courses, stages)
}

type mockTokenRepo struct {
	CreateTokenFunc   func(ctx context.Context, token, userID string, expiresAt time.Time) error
	UserIDByTokenFunc func(ctx context.Context, token string, now time.Time) (string, error)
	DeleteTokenFunc   func(ctx context.Context, token string) error
}

func (m *mockTokenRepo) CreateToken(ctx context.Context, token, userID string, expiresAt time.Time) error {
	return m.CreateTokenFunc(ctx, token, userID, expiresAt)
}
func (m *mockTokenRepo) UserIDByToken(ctx context.Context, token string, now time.Time) (string, error) {
	return m.UserIDByTokenFunc(ctx, token, now)
}
func (m *mockTokenRepo) DeleteToken(ctx context.Context, token string) error {
	return m.DeleteTokenFunc(ctx, token)
}

type mockPaymentRepo struct {
	CreatePaymentFunc     func(ctx context.Context, p models.Payment) error
	GetPaymentFunc        func(ctx context.Context, id string) (models.Payment, error)
	TransitionPaymentFunc func(ctx context.Context, id string, from, to models.PaymentStatus) (bool, error)
}

func (m *mockPaymentRepo) CreatePayment(ctx context.Context, p models.Payment) error {
	return m.CreatePaymentFunc(ctx, p)
}
func (m *mockPaymentRepo) GetPayment(ctx context.Context, id string) (models.Payment, error) {
	return m.GetPaymentFunc(ctx, id)
}
func (m *mockPaymentRepo) TransitionPayment(ctx context.Context, id string, from, to models.PaymentStatus) (bool, error) {
	return m.TransitionPaymentFunc(ctx, id, from, to)
}
