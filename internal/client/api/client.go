// Package api is the HTTP client of the account and payment backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// DefaultTimeout bounds a single request when no http.Client is supplied.
const DefaultTimeout = 10 * time.Second

// TokenSource provides the bearer token for authenticated calls.
// An empty token with a nil error means the user is signed out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the backend over JSON.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New returns a Client for baseURL. A nil httpClient gets DefaultTimeout.
func New(baseURL string, httpClient *http.Client, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

// AuthResult is the outcome of a successful login or registration.
type AuthResult struct {
	Token string
	User  models.User
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string    `json:"token"`
	User    *wireUser `json:"user"`
	Message string    `json:"message"`
}

type userResponse struct {
	User    *wireUser `json:"user"`
	Message string    `json:"message"`
}

// Login exchanges credentials for a token and the account.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	return c.authenticate(ctx, "/login", email, password)
}

// Register creates an account and signs it in.
func (c *Client) Register(ctx context.Context, email, password string) (AuthResult, error) {
	return c.authenticate(ctx, "/register", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (AuthResult, error) {
	var out authResponse
	if err := c.do(ctx, http.MethodPost, path, "", credentials{Email: email, Password: password}, &out); err != nil {
		return AuthResult{}, err
	}
	if out.User == nil {
		return AuthResult{}, ErrNoUser
	}
	return AuthResult{Token: out.Token, User: out.User.normalize()}, nil
}

// FetchCurrentUser returns the account of the stored token.
func (c *Client) FetchCurrentUser(ctx context.Context) (models.User, error) {
	return c.requestUser(ctx, http.MethodGet, nil)
}

// UpdateCurrentUser sends only the fields set in upd and returns the server's
// resulting account.
func (c *Client) UpdateCurrentUser(ctx context.Context, upd UserUpdate) (models.User, error) {
	return c.requestUser(ctx, http.MethodPatch, upd)
}

func (c *Client) requestUser(ctx context.Context, method string, body any) (models.User, error) {
	token, err := c.requireToken(ctx)
	if err != nil {
		return models.User{}, err
	}
	var out userResponse
	if err := c.do(ctx, method, "/me", token, body, &out); err != nil {
		return models.User{}, err
	}
	if out.User == nil {
		return models.User{}, ErrNoUser
	}
	return out.User.normalize(), nil
}

func (c *Client) requireToken(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", ErrMissingToken
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// optionalToken returns the stored token or "" without failing.
func (c *Client) optionalToken(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return ""
	}
	return token
}

// do sends one JSON request. A non-empty token marks the call as authenticated,
// so 401 and 403 map to ErrTokenInvalid.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if token != "" && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return ErrTokenInvalid
		}
		return &Error{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: invalid response: %w", ErrUnavailable, err)
	}
	return nil
}

// errorMessage extracts the server's message from a JSON or plain-text body.
func errorMessage(data []byte, fallback string) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		}
	} else if msg := strings.TrimSpace(string(data)); msg != "" {
		return msg
	}
	return fallback
}
