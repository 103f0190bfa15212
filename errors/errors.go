package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrValidation            = fmt.Errorf("validation failed")
	ErrPersistence           = fmt.Errorf("message could not be persisted")
	ErrDelivery              = fmt.Errorf("message could not be delivered")
	ErrRegistryInconsistency = fmt.Errorf("registry inconsistency")

	ErrMalformedPayload  = fmt.Errorf("%w: malformed payload", ErrValidation)
	ErrUnknownEvent      = fmt.Errorf("%w: unknown event", ErrValidation)
	ErrHandshakeRequired = fmt.Errorf("%w: identity handshake required", ErrValidation)
	ErrIdentityMismatch  = fmt.Errorf("%w: sender does not match session identity", ErrValidation)
	ErrNotJoined         = fmt.Errorf("%w: channel not joined", ErrValidation)
	ErrInvalidCursor     = fmt.Errorf("%w: invalid cursor", ErrValidation)
	ErrInvalidTransition = fmt.Errorf("%w: invalid session transition", ErrValidation)

	ErrSessionClosed    = fmt.Errorf("session closed")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSlowConsumer     = fmt.Errorf("connection outbound queue is full")
	ErrWorkerPanic      = fmt.Errorf("worker panic")
)

// Client-visible error codes.
const (
	CodeValidation  = "validation"
	CodePersistence = "persistence"
	CodeClosed      = "closed"
	CodeInternal    = "internal"
)

// Code maps an error to the code reported to clients.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrValidation):
		return CodeValidation
	case Is(err, ErrPersistence):
		return CodePersistence
	case Is(err, ErrSessionClosed), Is(err, ErrConnectionClosed):
		return CodeClosed
	default:
		return CodeInternal
	}
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}
