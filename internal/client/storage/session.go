package storage

import (
	"context"
	"fmt"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// Session holds the credentials and preferences stored next to the user record.
type Session struct {
	kv KV
}

// NewSession returns a Session persisting into kv.
func NewSession(kv KV) *Session { return &Session{kv: kv} }

// Token returns the auth token, or "" when the user is signed out.
func (s *Session) Token(ctx context.Context) (string, error) {
	tok, _, err := s.kv.Get(ctx, KeyToken)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return tok, nil
}

// Email returns the last email used to sign in.
func (s *Session) Email(ctx context.Context) (string, error) {
	email, _, err := s.kv.Get(ctx, KeyEmail)
	if err != nil {
		return "", fmt.Errorf("read email: %w", err)
	}
	return email, nil
}

// Authenticated reports whether a token is stored. Read errors count as signed out.
func (s *Session) Authenticated(ctx context.Context) bool {
	tok, err := s.Token(ctx)
	return err == nil && tok != ""
}

// SetCredentials stores the token and email of a successful sign-in.
func (s *Session) SetCredentials(ctx context.Context, token, email string) error {
	if err := s.kv.Set(ctx, KeyToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := s.kv.Set(ctx, KeyEmail, email); err != nil {
		return fmt.Errorf("store email: %w", err)
	}
	return nil
}

// ClearCredentials removes the token and email. Cached purchases are kept.
func (s *Session) ClearCredentials(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyToken); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	if err := s.kv.Delete(ctx, KeyEmail); err != nil {
		return fmt.Errorf("clear email: %w", err)
	}
	return nil
}

// Language returns the remembered UI language, or fallback when none is stored.
func (s *Session) Language(ctx context.Context, fallback models.Lang) models.Lang {
	v, ok, err := s.kv.Get(ctx, KeyLanguage)
	if err != nil || !ok || v == "" {
		return fallback
	}
	return models.ParseLang(v)
}

// SetLanguage remembers the UI language.
func (s *Session) SetLanguage(ctx context.Context, lang models.Lang) error {
	return s.kv.Set(ctx, KeyLanguage, string(lang))
}
