package http

import (
	"context"
	"sync"

	"github.com/atinyakov/CourseKeeper/internal/middleware"
	"github.com/atinyakov/CourseKeeper/internal/models"
	"github.com/atinyakov/CourseKeeper/internal/service"
)

// fakeAuthService implements AuthService and middleware.TokenResolver.
type fakeAuthService struct {
	account   models.Account
	err       error
	loggedOut string
}

func (f *fakeAuthService) Register(_ context.Context, email, _ string) (string, models.Account, error) {
	if f.err != nil {
		return "", models.Account{}, f.err
	}
	a := f.account
	a.Email = email
	return "tok", a, nil
}

func (f *fakeAuthService) Login(_ context.Context, email, _ string) (string, models.Account, error) {
	return f.Register(context.Background(), email, "")
}

func (f *fakeAuthService) Logout(_ context.Context, token string) error {
	f.loggedOut = token
	return nil
}

func (f *fakeAuthService) ResolveToken(_ context.Context, token string) (string, error) {
	if token == "tok" {
		return f.account.ID, nil
	}
	return "", middleware.ErrUnknownToken
}

type fakeAccountService struct {
	mu      sync.Mutex
	account models.Account
	err     error
	patch   service.AccountPatch
}

func (f *fakeAccountService) Get(_ context.Context, userID string) (models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return models.Account{}, f.err
	}
	if userID != f.account.ID {
		return models.Account{}, service.ErrNotFound
	}
	return f.account, nil
}

func (f *fakeAccountService) Update(ctx context.Context, userID string, p service.AccountPatch) (models.Account, error) {
	a, err := f.Get(ctx, userID)
	if err != nil {
		return a, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patch = p
	if p.OpenCategories != nil {
		a.OpenCategories = *p.OpenCategories
	}
	if p.PurchasedStages != nil {
		a.PurchasedStages = *p.PurchasedStages
	}
	f.account = a
	return a, nil
}

type fakePaymentService struct {
	mu        sync.Mutex
	payments  map[string]models.Payment
	createdBy string
	createErr error
}

func newFakePayments() *fakePaymentService {
	return &fakePaymentService{payments: map[string]models.Payment{}}
}

func (f *fakePaymentService) Create(_ context.Context, userID string, req service.PaymentRequest) (models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.Payment{}, f.createErr
	}
	p := models.Payment{
		ID:          "pay-1",
		UserID:      userID,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		CourseID:    req.CourseID,
		Status:      models.PaymentPending,
	}
	f.createdBy = userID
	f.payments[p.ID] = p
	return p, nil
}

func (f *fakePaymentService) Get(_ context.Context, id string) (models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return models.Payment{}, service.ErrNotFound
	}
	return p, nil
}

func (f *fakePaymentService) Complete(_ context.Context, id string, success bool) (models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return models.Payment{}, service.ErrNotFound
	}
	if p.Status == models.PaymentPending {
		p.Status = models.PaymentFailed
		if success {
			p.Status = models.PaymentSuccess
		}
		f.payments[id] = p
	}
	return p, nil
}
