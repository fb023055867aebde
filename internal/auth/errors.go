package auth

import "errors"

// Authentication errors
var (
	ErrWalletUnavailable = errors.New("wallet unavailable")
	ErrNetwork           = errors.New("network error")
	ErrAuthFailed        = errors.New("authentication failed")
)

// Session errors
var (
	ErrOperationInFlight = errors.New("another session operation is in flight")
	ErrNoStoredSession   = errors.New("no stored session")
)

// Role errors
var (
	ErrRegistrationCheckFailed = errors.New("patient registration check failed")
)
