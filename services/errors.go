package services

import "errors"

var (
	// ErrBankExists — add_bank with a key that is already taken.
	ErrBankExists = errors.New("bank key already exists")
	// ErrBankNotFound — update/delete against an unknown bank key.
	ErrBankNotFound = errors.New("bank not found")
	// ErrInvalidBank — empty key or base URL.
	ErrInvalidBank = errors.New("bank key and base url are required")
	// ErrAlreadyPending — the user still has an open reward request.
	ErrAlreadyPending = errors.New("reward request already pending")
	// ErrRequestNotFound — resolve against an unknown request id.
	ErrRequestNotFound = errors.New("reward request not found")
	// ErrUserNotFound — the tg id has never hit /start.
	ErrUserNotFound = errors.New("user not found")
	// ErrAlreadyResolved — resolve against an approved/rejected request.
	// Resolution is terminal; double-resolution is rejected, not overwritten.
	ErrAlreadyResolved = errors.New("reward request already resolved")
	// ErrInvalidDecision — resolve with anything but approved/rejected.
	ErrInvalidDecision = errors.New("invalid resolution decision")
	// ErrNoSession — advance/cancel without an active submission.
	ErrNoSession = errors.New("no active reward submission")
)
