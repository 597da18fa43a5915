package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Finer errors wrap exactly one of them so callers can
// classify with errors.Is or KindOf.
var (
	ErrAuthentication    = errors.New("authentication error")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation error")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrPersistence       = errors.New("persistence error")
	ErrConflict          = errors.New("conflict")
)

var (
	ErrTokenMissing       = fmt.Errorf("%w: missing token", ErrAuthentication)
	ErrTokenInvalid       = fmt.Errorf("%w: invalid token", ErrAuthentication)
	ErrTokenExpired       = fmt.Errorf("%w: expired token", ErrAuthentication)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrAuthentication)

	ErrRoomNotFound       = fmt.Errorf("%w: room not found", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("%w: user not found", ErrNotFound)
	ErrConnectionNotFound = fmt.Errorf("%w: connection not found", ErrNotFound)

	ErrEmptyContent   = fmt.Errorf("%w: message content is empty", ErrValidation)
	ErrContentTooLong = fmt.Errorf("%w: message content too long", ErrValidation)
	ErrMalformedEvent = fmt.Errorf("%w: malformed event", ErrValidation)
	ErrNotInRoom      = fmt.Errorf("%w: not in room", ErrValidation)
	ErrRateLimited    = fmt.Errorf("%w: rate limited", ErrValidation)

	ErrQueueFull = fmt.Errorf("%w: outbound queue full", ErrResourceExhausted)

	ErrDuplicateSession = fmt.Errorf("%w: identity already has a live session", ErrConflict)
	ErrUserExists       = fmt.Errorf("%w: user already exists", ErrConflict)
)

type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindValidation
	KindResourceExhausted
	KindPersistence
	KindConflict
)

// String returns the stable wire code of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication_error"
	case KindAuthorization:
		return "authorization_error"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_error"
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindPersistence:
		return "persistence_error"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrResourceExhausted):
		return KindResourceExhausted
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// Persistence wraps a storage collaborator failure.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}
