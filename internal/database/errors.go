package database

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable wraps every failure of the persistence layer itself.
	ErrUnavailable = errors.New("store unavailable")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("key already exists")
	// ErrNotFound is returned by writes that target a missing row.
	ErrNotFound = errors.New("not found")
)

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
