package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrProbe is matched (errors.Is) by every ProbeError.
	ErrProbe = errors.New("remote file probe failed")
	// ErrTransport is matched (errors.Is) by every TransportError.
	ErrTransport = errors.New("remote range request failed")
)

// ProbeError reports that the capability probe of a remote file failed:
// non-success status, compressed transport or unusable length.
type ProbeError struct {
	Locator string
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("couldn't probe %q", e.Locator)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProbeError) Is(target error) bool {
	return target == ErrProbe
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed range retrieval.
type TransportError struct {
	Locator string
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("couldn't load %q", e.Locator)
	if e.Status != 0 {
		msg += fmt.Sprintf(". Status: %d", e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
