package bzperi

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the taxonomy in spec.md §7. Use errors.Is against
// these; concrete failures are usually wrapped with extra context via
// fmt.Errorf("...: %w", ErrX).
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidServiceName = errors.New("invalid service name")
	ErrInvalidPath        = errors.New("invalid object path")
	ErrInvalidUUID        = errors.New("invalid uuid")
	ErrBusUnavailable     = errors.New("bus unavailable")
	ErrNameLost           = errors.New("well-known name lost")
	ErrNotReady           = errors.New("not ready")
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNotSupported       = errors.New("not supported")
	ErrAlreadyExists      = errors.New("already exists")
	ErrTimeout            = errors.New("timeout")
	ErrInProgress         = errors.New("in progress")
	ErrFailed             = errors.New("operation failed")
	ErrDuplicatePath      = errors.New("duplicate path")
	ErrUnknownInterface   = errors.New("unknown interface")
	ErrUnknownProperty    = errors.New("unknown property")
)

// Retryable classifies an error returned from a D-Bus operation per
// spec.md §4.F. PermissionDenied, NotSupported, InvalidArgs and
// AlreadyExists are never retried; timeouts, in-progress and BlueZ-not-ready
// conditions are.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrNotSupported),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrAlreadyExists):
		return false
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrInProgress),
		errors.Is(err, ErrNotReady),
		errors.Is(err, ErrFailed),
		errors.Is(err, ErrBusUnavailable):
		return true
	}
	return retryableBlueZName(err.Error())
}

// retryableBlueZName maps a raw BlueZ D-Bus error name/message onto the
// substring rules spec.md §4.F documents, for errors that arrive from the
// bus as plain strings rather than as one of our sentinels.
func retryableBlueZName(msg string) bool {
	for _, terminal := range []string{"PermissionDenied", "NotSupported", "InvalidArgs", "AlreadyExists"} {
		if strings.Contains(msg, terminal) {
			return false
		}
	}
	for _, transient := range []string{"Timeout", "InProgress", "NotReady", "Failed",
		"NoReply", "Disconnected", "ServiceUnknown", "NameHasNoOwner",
		"Busy", "WouldBlock", "TimedOut", "ConnectionRefused", "NotConnected"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}

// handlerError is returned to a remote D-Bus caller and never propagated
// to the state machine (spec.md §7 "Handler errors").
type handlerError struct {
	name string
	msg  string
}

func (e *handlerError) Error() string { return fmt.Sprintf("%s: %s", e.name, e.msg) }

// NewHandlerError builds an error that the publisher (component D) will
// translate into a named D-Bus error reply instead of a run-state change.
func NewHandlerError(name, msg string) error {
	return &handlerError{name: name, msg: msg}
}
