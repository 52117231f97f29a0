package core

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork            = errors.New("network error")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidationRejected = errors.New("request rejected")
	ErrServer             = errors.New("server error")

	ErrProviderUnavailable = errors.New("wallet provider not installed")
	ErrSigningRejected     = errors.New("signing rejected by user")
	ErrRefreshExhausted    = errors.New("session refresh failed")

	ErrNotConnected      = errors.New("wallet not connected")
	ErrConnectInProgress = errors.New("wallet connection already in progress")
	ErrUnknownProvider   = errors.New("unknown wallet provider")
	ErrUnsupported       = errors.New("operation not supported by provider")

	ErrLoginInProgress  = errors.New("login already in progress")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidSession   = errors.New("invalid session")

	// ErrNotFound is returned by storage when a key is absent
	ErrNotFound = errors.New("not found")
)

// ErrorKind classifies a failed backend call
type ErrorKind int

const (
	KindNetwork ErrorKind = iota + 1
	KindUnauthorized
	KindValidation
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNetwork:
		return ErrNetwork
	case KindUnauthorized:
		return ErrUnauthorized
	case KindValidation:
		return ErrValidationRejected
	case KindServer:
		return ErrServer
	default:
		return nil
	}
}

// RequestError is returned for every failed backend call
type RequestError struct {
	Kind    ErrorKind
	Method  string
	Path    string
	Status  int    // zero when no response was received
	Message string // server-provided message, if any
	Err     error  // underlying transport error, if any
}

func (e *RequestError) Error() string {
	switch {
	case e.Status == 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Method, e.Path, e.Kind, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: %s (%d): %s", e.Method, e.Path, e.Kind, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s %s: %s (%d)", e.Method, e.Path, e.Kind, e.Status)
	}
}

// Is matches the kind sentinels
func (e *RequestError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a request error, or zero
func KindOf(err error) ErrorKind {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Kind
	}
	return 0
}
