package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/atinyakov/CourseKeeper/internal/middleware"
	"github.com/atinyakov/CourseKeeper/internal/models"
	"github.com/atinyakov/CourseKeeper/internal/repository"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// UserRepository defines the account persistence operations.
type UserRepository interface {
	CreateUser(ctx context.Context, a models.Account) error
	GetUserByEmail(ctx context.Context, email string) (models.Account, error)
	GetUserByID(ctx context.Context, id string) (models.Account, error)
	UpdateUser(ctx context.Context, a models.Account) (models.Account, error)
	GrantPurchases(ctx context.Context, userID string, courses, stages []int) (models.Account, error)
}

// TokenRepository defines the session token persistence operations.
type TokenRepository interface {
	CreateToken(ctx context.Context, token, userID string, expiresAt time.Time) error
	UserIDByToken(ctx context.Context, token string, now time.Time) (string, error)
	DeleteToken(ctx context.Context, token string) error
}

// AuthService registers accounts and issues opaque session tokens.
type AuthService struct {
	users    UserRepository
	tokens   TokenRepository
	tokenTTL time.Duration
	cost     int
	now      func() time.Time
}

// NewAuthService constructs an AuthService issuing tokens valid for tokenTTL.
func NewAuthService(users UserRepository, tokens TokenRepository, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		cost:     bcrypt.DefaultCost,
		now:      time.Now,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email", ErrInvalidInput)
	}
	return email, nil
}

// Register creates an account and signs it in.
func (s *AuthService) Register(ctx context.Context, email, password string) (string, models.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", models.Account{}, err
	}
	if len(password) < MinPasswordLength {
		return "", models.Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", models.Account{}, fmt.Errorf("hash password: %w", err)
	}

	a := models.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		UserName:     strings.SplitN(email, "@", 2)[0],
		Role:         models.RoleDefault,
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, a); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return "", models.Account{}, ErrEmailTaken
		}
		return "", models.Account{}, err
	}

	token, err := s.issue(ctx, a.ID)
	if err != nil {
		return "", models.Account{}, err
	}
	return token, a, nil
}

// Login checks the credentials and issues a new token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, models.Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", models.Account{}, ErrInvalidCredentials
	}
	a, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", models.Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", models.Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)); err != nil {
		return "", models.Account{}, ErrInvalidCredentials
	}

	token, err := s.issue(ctx, a.ID)
	if err != nil {
		return "", models.Account{}, err
	}
	return token, a, nil
}

func (s *AuthService) issue(ctx context.Context, userID string) (string, error) {
	token := uuid.NewString()
	if err := s.tokens.CreateToken(ctx, token, userID, s.now().Add(s.tokenTTL)); err != nil {
		return "", err
	}
	return token, nil
}

// ResolveToken returns the user id of a live token, or
// middleware.ErrUnknownToken.
func (s *AuthService) ResolveToken(ctx context.Context, token string) (string, error) {
	id, err := s.tokens.UserIDByToken(ctx, token, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return "", middleware.ErrUnknownToken
	}
	return id, err
}

// Logout revokes token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.tokens.DeleteToken(ctx, token)
}
