package mongo

import (
	"fmt"
	"strings"
)

// Error represents the different classes of errors that may be returned while
// authenticating a connection.
//
// Programs may use the standard errors.Is function to test an error returned
// by this package against one of the codes.
type Error int

const (
	CallbackFailed    Error = 1
	CallbackTimeout   Error = 2
	ProtocolViolation Error = 3
	TransportFailure  Error = 4
	AlreadyFrozen     Error = 5
)

// Error satisfies the error interface.
func (e Error) Error() string {
	return fmt.Sprintf("[%d] %s: %s", e, e.Title(), e.Description())
}

// Timeout returns true if the error was due to a timeout.
func (e Error) Timeout() bool {
	return e == CallbackTimeout
}

// Temporary returns true if the operation that generated the error may succeed
// if retried at a later time.
func (e Error) Temporary() bool {
	switch e {
	case CallbackTimeout, TransportFailure:
		return true
	default:
		return false
	}
}

// Title returns a human readable title for the error.
func (e Error) Title() string {
	switch e {
	case CallbackFailed:
		return "OIDC Callback Failed"
	case CallbackTimeout:
		return "OIDC Callback Timeout"
	case ProtocolViolation:
		return "Protocol Violation"
	case TransportFailure:
		return "Transport Failure"
	case AlreadyFrozen:
		return "Already Frozen"
	}
	return ""
}

// Description returns a human readable description of cause of the error.
func (e Error) Description() string {
	switch e {
	case CallbackFailed:
		return "the user provided OIDC callback did not produce an access token"
	case CallbackTimeout:
		return "the user provided OIDC callback returned after its timeout expired"
	case ProtocolViolation:
		return "the server reply to an authentication command was malformed or incomplete"
	case TransportFailure:
		return "the authentication command could not be sent or its reply could not be read"
	case AlreadyFrozen:
		return "the handshake metadata cannot be modified after it was frozen"
	}
	return ""
}

// AuthError is the error type returned when authenticating a connection
// fails. It carries the error class, a message describing the failure, and
// the underlying cause when there is one.
type AuthError struct {
	Code    Error
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	s := e.Message
	if s == "" {
		s = e.Code.Title()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes both the error code and the cause, which lets errors.Is match
// either of them.
func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Err}
}

// Timeout returns true if the error was due to a timeout.
func (e *AuthError) Timeout() bool { return e.Code.Timeout() }

// Temporary returns true if the operation that generated the error may succeed
// if retried at a later time.
func (e *AuthError) Temporary() bool { return e.Code.Temporary() }

func makeError(code Error, message string, cause error) error {
	return &AuthError{Code: code, Message: message, Err: cause}
}

type errorList []error

func (errors errorList) Error() string {
	switch len(errors) {
	case 0:
		return ""
	case 1:
		return errors[0].Error()
	default:
		s := make([]string, len(errors))
		for i, e := range errors {
			s[i] = e.Error()
		}
		return strings.Join(s, ": ")
	}
}

func (errors errorList) Unwrap() []error { return errors }

func appendError(to error, err error) error {
	if err == nil {
		return to
	}

	if to == nil {
		return err
	}

	if errlist, ok := to.(errorList); ok {
		return append(errlist, err)
	}

	return errorList{to, err}
}
