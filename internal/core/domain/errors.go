package domain

import "errors"

var (
	ErrStreamNotFound   = errors.New("stream not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrUserUnknown      = errors.New("user unknown for session")
	ErrInvalidToken     = errors.New("invalid session token")
	ErrUnknownSignal    = errors.New("unknown signal kind")
	ErrSessionClosed    = errors.New("session closed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrIdentityRejected = errors.New("client supplied identity not accepted")
)
