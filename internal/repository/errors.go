// Package repository defines error types that are reused across the
// storage layer. These sentinel values allow higher layers to distinguish
// between failure scenarios without looking at driver errors: every
// duplicate-key error of every supported driver is translated into one of
// the *Exists values below, each of which also matches ErrConflict.
package repository

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the addressed user does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write violates a uniqueness rule.
var ErrConflict = errors.New("conflict")

var (
	ErrUsernameExists = fmt.Errorf("username already exists: %w", ErrConflict)
	ErrEmailExists    = fmt.Errorf("email already exists: %w", ErrConflict)
	ErrNicknameExists = fmt.Errorf("nickname already exists: %w", ErrConflict)
)
