package lifecycle

import (
	"fmt"
)

// Error is a lifecycle failure with a machine-readable code.
type Error struct {
	Code    string
	Message string
	// ErrorText is the last error line the engine printed, if any.
	ErrorText string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Error codes
const (
	ErrCodeBootFailed        = "BOOT_FAILED"
	ErrCodeDuplicateEmbedded = "DUPLICATE_EMBEDDED"
	ErrCodeTransportOpen     = "TRANSPORT_OPEN_FAILED"
	ErrCodeConfigInvalid     = "CONFIG_INVALID"
	ErrCodeRenderFailed      = "RENDER_FAILED"
)

// Sentinels for errors.Is.
var (
	ErrBootFailed                = &Error{Code: ErrCodeBootFailed, Message: "boot failed"}
	ErrDuplicateEmbeddedInstance = &Error{Code: ErrCodeDuplicateEmbedded, Message: "an embedded engine is already running in this process"}
	ErrTransportOpen             = &Error{Code: ErrCodeTransportOpen, Message: "failed to open engine transport"}
	ErrConfigInvalid             = &Error{Code: ErrCodeConfigInvalid, Message: "invalid engine options"}
	ErrRenderFailed              = &Error{Code: ErrCodeRenderFailed, Message: "render failed"}
)

// NewError creates a new lifecycle error
func NewError(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewBootError reports a boot that ended without the engine becoming ready.
// errorText is the last error line observed and may be empty.
func NewBootError(errorText string, cause error) *Error {
	msg := errorText
	if msg == "" {
		msg = "engine exited before it was ready"
	}
	return &Error{
		Code:      ErrCodeBootFailed,
		Message:   msg,
		ErrorText: errorText,
		Cause:     cause,
	}
}
