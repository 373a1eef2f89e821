package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateReference = errors.New("order reference already exists")
	ErrDuplicateIntent    = errors.New("payment intent already recorded")
	// ErrNoMatch means a conditional update found no row in the expected state.
	ErrNoMatch             = errors.New("no row in expected state")
	ErrIllegalTransition   = errors.New("illegal status transition")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// translate maps driver errors onto the package's sentinels. dup is returned
// for unique-key violations.
func translate(op string, err, dup error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		if dup != nil {
			return dup
		}
	}
	return &StoreError{Op: op, Err: err}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite does not go through gorm's translator
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "duplicate key")
}
