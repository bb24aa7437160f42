// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type ctxKey string

const userKey ctxKey = "user"

// ErrUnknownToken is returned by a TokenResolver for a token it does not know
// or that has expired.
var ErrUnknownToken = errors.New("unknown token")

// TokenResolver maps a bearer token to a user id.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (string, error)
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" header.
//
// On success the resolved user id is stored in the request context and can be
// read with GetUserIDFromContext.
func BearerAuth(tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "authorization required", http.StatusUnauthorized)
				return
			}
			userID, err := tokens.ResolveToken(r.Context(), token)
			switch {
			case errors.Is(err, ErrUnknownToken):
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			case err != nil:
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalBearerAuth stores the user id of a valid bearer token and passes
// every other request through unauthenticated.
func OptionalBearerAuth(tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := bearerToken(r); ok {
				if userID, err := tokens.ResolveToken(r.Context(), token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), userKey, userID))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// GetUserIDFromContext extracts the authenticated user id from the request
// context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	val := ctx.Value(userKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
