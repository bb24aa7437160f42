package service

import (
	"context"
	"errors"

	"github.com/atinyakov/CourseKeeper/internal/models"
	"github.com/atinyakov/CourseKeeper/internal/repository"
)

// AccountPatch carries the fields of a partial account update. Nil fields
// are left unchanged.
type AccountPatch struct {
	Email           *string
	UserName        *string
	Avatar          *string
	OpenCategories  *[]int
	PurchasedStages *[]int
}

// AccountService reads and updates the signed-in account.
type AccountService struct {
	users UserRepository
}

// NewAccountService constructs an AccountService.
func NewAccountService(users UserRepository) *AccountService {
	return &AccountService{users: users}
}

// Get returns the account of userID.
func (s *AccountService) Get(ctx context.Context, userID string) (models.Account, error) {
	a, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Account{}, ErrNotFound
	}
	return a, err
}

// Update applies p to the account of userID. Purchase lists replace the
// stored ones after dropping duplicates and non-positive ids.
func (s *AccountService) Update(ctx context.Context, userID string, p AccountPatch) (models.Account, error) {
	a, err := s.Get(ctx, userID)
	if err != nil {
		return models.Account{}, err
	}

	if p.Email != nil {
		email, err := normalizeEmail(*p.Email)
		if err != nil {
			return models.Account{}, err
		}
		a.Email = email
	}
	if p.UserName != nil {
		a.UserName = *p.UserName
	}
	if p.Avatar != nil {
		a.Avatar = *p.Avatar
	}
	if p.OpenCategories != nil {
		a.OpenCategories = dedupe(*p.OpenCategories)
	}
	if p.PurchasedStages != nil {
		a.PurchasedStages = dedupe(*p.PurchasedStages)
	}

	out, err := s.users.UpdateUser(ctx, a)
	switch {
	case errors.Is(err, repository.ErrConflict):
		return models.Account{}, ErrEmailTaken
	case errors.Is(err, repository.ErrNotFound):
		return models.Account{}, ErrNotFound
	}
	return out, err
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
