package authgate

import (
	"errors"
	"net/http"
)

var (
	// ErrConfiguration reports an unusable configuration. Returned only by Build; fatal.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrInvalidCredentials is returned for an unknown username or a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTooManyAttempts is returned while the caller is blocked or over its request budget.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrDependencyUnavailable is returned when the counter store or the credential
	// validator cannot be reached. The request is rejected (fail closed).
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrGateNotReady is returned when a Gate method is called on a nil or unbuilt Gate.
	ErrGateNotReady = errors.New("gate not initialized")
)

// ErrorKind is the stable, externally visible error vocabulary of the gate.
type ErrorKind uint8

const (
	// KindNone means no error.
	KindNone ErrorKind = iota
	// KindConfiguration maps ErrConfiguration.
	KindConfiguration
	// KindInvalidCredentials maps ErrInvalidCredentials.
	KindInvalidCredentials
	// KindTooManyAttempts maps ErrTooManyAttempts.
	KindTooManyAttempts
	// KindInvalidToken maps ErrInvalidToken.
	KindInvalidToken
	// KindDependencyUnavailable maps ErrDependencyUnavailable.
	KindDependencyUnavailable
	// KindInternal covers anything else.
	KindInternal
)

// KindOf classifies err into the stable vocabulary.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrTooManyAttempts):
		return KindTooManyAttempts
	case errors.Is(err, ErrInvalidToken):
		return KindInvalidToken
	case errors.Is(err, ErrDependencyUnavailable):
		return KindDependencyUnavailable
	default:
		return KindInternal
	}
}

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfiguration:
		return "configuration"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindTooManyAttempts:
		return "too_many_attempts"
	case KindInvalidToken:
		return "invalid_token"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	default:
		return "internal"
	}
}

// Code returns the numeric code carried in API error bodies.
func (k ErrorKind) Code() int {
	switch k {
	case KindNone:
		return 1000
	case KindInvalidToken:
		return 1001
	case KindInvalidCredentials:
		return 2003
	case KindTooManyAttempts:
		return 429
	case KindDependencyUnavailable:
		return 9001
	case KindConfiguration:
		return 9998
	default:
		return 9999
	}
}

// Message returns a caller-safe description of the kind.
func (k ErrorKind) Message() string {
	switch k {
	case KindNone:
		return "Success"
	case KindInvalidToken:
		return "You do not have permission"
	case KindInvalidCredentials:
		return "Invalid username or password"
	case KindTooManyAttempts:
		return "Too many requests"
	case KindDependencyUnavailable:
		return "Service temporarily unavailable"
	default:
		return "Uncategorized error"
	}
}

// HTTPStatus returns the status code the HTTP layer should answer with.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindNone:
		return http.StatusOK
	case KindInvalidToken, KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindTooManyAttempts:
		return http.StatusTooManyRequests
	case KindDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
