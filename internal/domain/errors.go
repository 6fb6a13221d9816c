package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated signals that an operation required an identity and none was present.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden signals that the caller lacks the required permission.
	ErrForbidden = errors.New("auth: forbidden")
	// ErrTokenExpired indicates the token's exp claim has passed.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid indicates malformed, unsigned or otherwise unverifiable tokens.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrRateLimited indicates too many attempts for the same key within the window.
	ErrRateLimited = errors.New("auth: rate limited")
	// ErrUserNotFound signals that the referenced identity does not exist.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrInvalidCredentials is the generic login failure.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrRegistryUnavailable signals the shared revocation/rate-limit store could not be reached.
	ErrRegistryUnavailable = errors.New("auth: registry unavailable")
	// ErrAlreadyRevoked signals a revocation entry already exists.
	ErrAlreadyRevoked = errors.New("auth: token already revoked")
	// ErrAlreadyExpired signals there is nothing left to revoke.
	ErrAlreadyExpired = errors.New("auth: token already expired")
	// ErrInvalidInput indicates caller input validation errors.
	ErrInvalidInput = errors.New("auth: invalid input")
	// ErrNotFound signals a missing record other than a user.
	ErrNotFound = errors.New("auth: not found")
	// ErrConflict signals a uniqueness violation.
	ErrConflict = errors.New("auth: conflict")

	// ErrWrongTokenType is a refresh token used as access token or vice versa.
	ErrWrongTokenType = fmt.Errorf("%w: wrong token type", ErrTokenInvalid)
	// ErrTokenRevoked is a token presented after logout or rotation.
	ErrTokenRevoked = fmt.Errorf("%w: token revoked", ErrTokenInvalid)
)
