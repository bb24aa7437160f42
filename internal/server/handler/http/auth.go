package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// AuthService defines the authentication operations required by the HTTP handlers.
type AuthService interface {
	// Register creates an account and returns a token for it.
	Register(ctx context.Context, email, password string) (string, models.Account, error)
	// Login checks credentials and returns a new token.
	Login(ctx context.Context, email, password string) (string, models.Account, error)
	// Logout revokes a token.
	Logout(ctx context.Context, token string) error
}

// AuthHandler handles HTTP requests for registration, login and logout.
type AuthHandler struct {
	AuthService AuthService
}

// CredentialsRequest represents the JSON payload for registration and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string   `json:"token"`
	User  userJSON `json:"user"`
}

func decodeCredentials(r *http.Request) (CredentialsRequest, bool) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		return req, false
	}
	return req, true
}

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	token, a, err := h.AuthService.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: toUserJSON(a)})
}

// Login handles POST /login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCredentials(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	token, a, err := h.AuthService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: toUserJSON(a)})
}

// Logout handles POST /logout. It requires BearerAuth in front of it.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	_, token, _ := strings.Cut(r.Header.Get("Authorization"), " ")
	if err := h.AuthService.Logout(r.Context(), strings.TrimSpace(token)); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
