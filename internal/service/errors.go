// Package service implements the account and payment logic of the
// development backend, delegating persistence to repositories.
package service

import "errors"

var (
	// ErrInvalidInput is returned for malformed requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials is returned when email or password do not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when registering or renaming to a used email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("not found")
)
