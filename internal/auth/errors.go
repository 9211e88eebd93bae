package auth

import (
	"errors"
	"net/http"
)

// Sentinel errors for auth operations. Callers classify them with
// errors.Is or KindOf; messages never include tokens or digests.
var (
	ErrInvalidCredentials     = errors.New("incorrect username or password")
	ErrInvalidToken           = errors.New("invalid token")
	ErrExpiredToken           = errors.New("token has expired")
	ErrMalformedToken         = errors.New("malformed token")
	ErrForbidden              = errors.New("you do not have enough permissions to perform this action")
	ErrNotFound               = errors.New("not found")
	ErrDuplicateUsername      = errors.New("username already exists")
	ErrInvalidInput           = errors.New("invalid input")
	ErrSessionOperationFailed = errors.New("session operation failed")
	ErrSessionCreationFailed  = errors.New("session creation failed")
	ErrStoreFailure           = errors.New("store failure")
)

// Kind classifies an auth error for transport mapping.
type Kind int

// Error kinds. KindStoreFailure is the catch-all for anything unrecognised.
const (
	KindStoreFailure Kind = iota
	KindInvalidCredentials
	KindInvalidToken
	KindExpiredToken
	KindMalformedToken
	KindForbidden
	KindNotFound
	KindDuplicateUsername
	KindInvalidInput
	KindSessionOperationFailed
	KindSessionCreationFailed
)

var kindSentinels = []struct {
	kind Kind
	err  error
}{
	{KindInvalidCredentials, ErrInvalidCredentials},
	{KindExpiredToken, ErrExpiredToken},
	{KindMalformedToken, ErrMalformedToken},
	{KindInvalidToken, ErrInvalidToken},
	{KindForbidden, ErrForbidden},
	{KindNotFound, ErrNotFound},
	{KindDuplicateUsername, ErrDuplicateUsername},
	{KindInvalidInput, ErrInvalidInput},
	{KindSessionCreationFailed, ErrSessionCreationFailed},
	{KindSessionOperationFailed, ErrSessionOperationFailed},
	{KindStoreFailure, ErrStoreFailure},
}

// KindOf returns the kind of err. Unknown errors are KindStoreFailure.
func KindOf(err error) Kind {
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindStoreFailure
}

// HTTPStatus maps the kind to a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidCredentials, KindInvalidToken, KindExpiredToken, KindMalformedToken:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateUsername, KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// String returns a stable snake_case name, used as the API error code.
func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidToken:
		return "invalid_token"
	case KindExpiredToken:
		return "expired_token"
	case KindMalformedToken:
		return "malformed_token"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindDuplicateUsername:
		return "duplicate_username"
	case KindInvalidInput:
		return "invalid_input"
	case KindSessionOperationFailed:
		return "session_operation_failed"
	case KindSessionCreationFailed:
		return "session_creation_failed"
	default:
		return "store_failure"
	}
}
