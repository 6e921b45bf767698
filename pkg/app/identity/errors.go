package identity

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid guest credentials")
	ErrInvalidRecipient   = errors.New("invalid recipient")
	ErrInvalidCode        = errors.New("invalid or expired verification code")
	ErrTooManyAttempts    = errors.New("too many failed verification attempts")
)
