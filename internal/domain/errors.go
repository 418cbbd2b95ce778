package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrLockHeld      = errors.New("lock already held")

	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidState         = errors.New("invalid state")
	ErrUnsupportedMechanism = errors.New("unsupported mechanism")
	ErrFeedNotFound         = errors.New("feed not found")
	ErrProviderError        = errors.New("provider error")
	ErrLedgerError          = errors.New("ledger error")
	ErrAlreadyResolved      = errors.New("already resolved")
	ErrResolutionFailed     = errors.New("resolution failed")
)

// Error kinds reported to API callers.
const (
	KindInvalidInput         = "InvalidInput"
	KindInvalidState         = "InvalidState"
	KindUnsupportedMechanism = "UnsupportedMechanism"
	KindFeedNotFound         = "FeedNotFound"
	KindProviderError        = "ProviderError"
	KindLedgerError          = "LedgerError"
	KindAlreadyResolved      = "AlreadyResolved"
	KindResolutionFailed     = "ResolutionFailed"
	KindNotFound             = "NotFound"
	KindLockHeld             = "LockHeld"
	KindRateLimited          = "RateLimited"
	KindInternal             = "Internal"
)

// KindOf classifies err into one of the Kind* constants. ResolutionFailed is
// checked before the data client kinds it usually wraps.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyResolved):
		return KindAlreadyResolved
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrUnsupportedMechanism):
		return KindUnsupportedMechanism
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrResolutionFailed):
		return KindResolutionFailed
	case errors.Is(err, ErrFeedNotFound):
		return KindFeedNotFound
	case errors.Is(err, ErrProviderError):
		return KindProviderError
	case errors.Is(err, ErrLedgerError):
		return KindLedgerError
	case errors.Is(err, ErrLockHeld):
		return KindLockHeld
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	default:
		return KindInternal
	}
}
