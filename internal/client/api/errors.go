package api

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingToken is returned by authenticated calls when no token is stored.
	// No request is sent in that case.
	ErrMissingToken = errors.New("missing auth token, please log in again")
	// ErrTokenInvalid is returned when the server rejects the bearer token.
	ErrTokenInvalid = errors.New("auth token rejected by server")
	// ErrNoUser is returned when a successful response carries no user object.
	ErrNoUser = errors.New("server response does not include user information")
	// ErrUnavailable wraps transport failures: the server could not be reached
	// or its response could not be read.
	ErrUnavailable = errors.New("request to server failed")
)

// Error is a non-2xx response from the backend.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Message)
}
