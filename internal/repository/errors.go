// Package repository provides PostgreSQL persistence for accounts, session
// tokens and payment sessions.
package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no row matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects the write.
	ErrConflict = errors.New("already exists")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func toInt64s(ids []int) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func toInts(ids pq.Int64Array) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
