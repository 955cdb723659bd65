package edutrack

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Text codes exposed to API clients alongside the generic message.
const (
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeTokenInvalidOrExpired = "TOKEN_INVALID_OR_EXPIRED"
	TextCodeInvalidCredentials    = "INVALID_CREDENTIALS"
	TextCodeEmailNotVerified      = "EMAIL_NOT_VERIFIED"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrUnableToFindSession is the error when a request carries no token
var ErrUnableToFindSession = errors.New("unable to find session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrUnableToDecodeSession unable to decode JWT claims
var ErrUnableToDecodeSession = errors.New("unable to decode session", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword covers both an unknown email and a wrong
// password so callers cannot probe which accounts exist.
var ErrMismatchedHashAndPassword = errors.New("invalid credentials", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCredentials)

// ErrEmailNotVerified blocks session issuance until the address is confirmed.
var ErrEmailNotVerified = errors.New("email not verified", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeEmailNotVerified)

// ErrTooManyLoginAttempts is returned while the cooldown window is active.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode("TOO_MANY_ATTEMPTS")

// ErrTokenExpired is the rich error for expired session tokens.
var ErrTokenExpired = errors.New("authentication token has expired", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed is the rich error for tokens we cannot parse or verify.
var ErrTokenMalformed = errors.New("invalid authentication token", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized).
	WithTextCode("TOKEN_MALFORMED")

// ErrActionTokenInvalid covers not-found, expired and already-consumed action
// tokens with a single kind; which predicate failed is never exposed.
var ErrActionTokenInvalid = errors.New("invalid or expired token", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest).
	WithTextCode(TextCodeTokenInvalidOrExpired)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired") ||
		strings.Contains(err.Error(), "token has expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
