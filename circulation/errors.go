package circulation

import (
	"errors"
	"fmt"
)

// Error classes. Callers branch on these with errors.Is; the HTTP layer maps
// them to status codes. Specific sentinels below wrap exactly one class.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("store failure")
)

var (
	ErrBookNotFound       = fmt.Errorf("%w: book does not exist", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("%w: user does not exist", ErrNotFound)
	ErrBorrowNotFound     = fmt.Errorf("%w: borrow record does not exist", ErrNotFound)
	ErrAttachmentNotFound = fmt.Errorf("%w: attachment does not exist", ErrNotFound)

	ErrBookAlreadyBorrowed   = fmt.Errorf("%w: book is already borrowed", ErrConflict)
	ErrBorrowAlreadyReturned = fmt.Errorf("%w: borrow record is already returned", ErrConflict)
	ErrActiveBorrowExists    = fmt.Errorf("%w: active borrow exists", ErrConflict)
	ErrUsernameTaken         = fmt.Errorf("%w: username is already taken", ErrConflict)

	ErrInvalidQuantity  = fmt.Errorf("%w: quantity must be a non-negative integer", ErrValidation)
	ErrMissingUsername  = fmt.Errorf("%w: username is required", ErrValidation)
	ErrEmptyUpload      = fmt.Errorf("%w: no file content supplied", ErrValidation)
	ErrPasswordTooShort = fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
)

// ErrInvalidCredentials deliberately belongs to no class: authentication
// failures are reported as 401 by the transport, not as one of the four
// store error classes.
var ErrInvalidCredentials = errors.New("invalid username or password")

// MinPasswordLength is the minimum accepted length for user passwords.
const MinPasswordLength = 6
