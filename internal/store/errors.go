package store

import "errors"

// Sentinel errors for store operations. Expected outcomes (duplicate
// completions) get their own sentinel so callers can branch without string
// matching.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateCompletion indicates a completion already exists for the
	// habit on the same calendar day. A conflict, not a failure.
	ErrDuplicateCompletion = errors.New("habit already completed today")

	// ErrHabitAlreadyLinked indicates the habit definition is already linked
	// to the goal instance.
	ErrHabitAlreadyLinked = errors.New("habit already linked to goal")
)
