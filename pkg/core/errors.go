package core

import (
	"errors"
	"fmt"
)

// Error represents a voice engine error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	Underlying error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrPermissionDenied ErrorType = "permission_denied_error"
	ErrConnection       ErrorType = "connection_error"
	ErrDecode           ErrorType = "decode_error"
	ErrMalformedAudio   ErrorType = "malformed_audio_error"
	ErrRemote           ErrorType = "remote_error"
	ErrInvalidRequest   ErrorType = "invalid_request_error"
	ErrState            ErrorType = "state_error"
)

// NewPermissionDeniedError creates a microphone permission error.
func NewPermissionDeniedError(message string) *Error {
	return &Error{
		Type:    ErrPermissionDenied,
		Message: message,
	}
}

// NewConnectionError creates a connection error wrapping the transport failure.
func NewConnectionError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrConnection,
		Message:    message,
		Underlying: underlying,
	}
}

// NewDecodeError creates a base64 transport decode error.
func NewDecodeError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrDecode,
		Message:    message,
		Underlying: underlying,
	}
}

// NewMalformedAudioError creates a PCM framing error.
func NewMalformedAudioError(message string) *Error {
	return &Error{
		Type:    ErrMalformedAudio,
		Message: message,
	}
}

// NewRemoteError creates an error from a server error frame.
func NewRemoteError(message, code string) *Error {
	return &Error{
		Type:    ErrRemote,
		Message: message,
		Code:    code,
	}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewStateError creates an error for an operation attempted in the wrong mode.
func NewStateError(message string) *Error {
	return &Error{
		Type:    ErrState,
		Message: message,
	}
}

// IsRetryable reports whether the caller should retry automatically.
// The voice path never retries: a failed or dropped session tears down
// and waits for the user to start a new one.
func (e *Error) IsRetryable() bool {
	return false
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// TypeOf returns the ErrorType of err if it is (or wraps) an *Error.
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}

// IsType reports whether err is (or wraps) an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	got, ok := TypeOf(err)
	return ok && got == t
}
