package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes an envelope rejection.
type ErrorCode string

const (
	ErrCodeMissingField     ErrorCode = "MISSING_FIELD"
	ErrCodeProtocolMismatch ErrorCode = "PROTOCOL_MISMATCH"
	ErrCodeVersionMismatch  ErrorCode = "VERSION_MISMATCH"
	ErrCodeTypeMismatch     ErrorCode = "TYPE_MISMATCH"
	ErrCodeHashMismatch     ErrorCode = "HASH_MISMATCH"
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
)

// ProtocolError rejects a whole envelope. Nothing in a rejected envelope
// is processed.
type ProtocolError struct {
	Code    ErrorCode
	Field   string
	Message string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("protocol %s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("protocol %s: %s", e.Code, e.Message)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// HasCode reports whether err is a *ProtocolError with code.
func HasCode(err error, code ErrorCode) bool {
	var pe *ProtocolError
	return errors.As(err, &pe) && pe.Code == code
}

func protoErr(code ErrorCode, field, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}
