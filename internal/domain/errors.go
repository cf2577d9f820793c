package domain

import "errors"

var (
	// ErrAdapterUnavailable means the extraction service failed: timeout,
	// transport error or a response that could not be parsed.
	ErrAdapterUnavailable = errors.New("extraction service unavailable")

	// ErrPersistence wraps any failure of a storage call.
	ErrPersistence = errors.New("persistence error")

	// ErrDuplicateExpense is returned by stores that enforce uniqueness on
	// (user, merchant, amount, date).
	ErrDuplicateExpense = errors.New("duplicate expense")

	// ErrNotFound is returned when a scoped lookup or delete matches no row.
	ErrNotFound = errors.New("not found")

	// ErrNoMatchingUser means a bank email could not be attributed to a user.
	ErrNoMatchingUser = errors.New("no matching user")

	// ErrLinkCodeInvalid covers unknown, expired and already used link codes.
	ErrLinkCodeInvalid = errors.New("link code invalid or expired")
)
