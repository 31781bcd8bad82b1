package authority

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorityDenied is wrapped by every authority rejection.
	ErrAuthorityDenied = errors.New("authority denied")

	// ErrUnknownSystem is wrapped when no kernel is registered for a
	// command's system.
	ErrUnknownSystem = errors.New("unknown system")

	// ErrStaleCommand is returned when a staged command is committed after
	// the model has moved on.
	ErrStaleCommand = errors.New("stale staged command")
)

// ErrorCode categorizes a command failure.
type ErrorCode string

const (
	ErrCodeInvalidCommand ErrorCode = "INVALID_COMMAND"
	ErrCodeDenied         ErrorCode = "AUTHORITY_DENIED"
	ErrCodeUnknownSystem  ErrorCode = "UNKNOWN_SYSTEM"
	ErrCodeKernelFailed   ErrorCode = "KERNEL_FAILED"
	ErrCodeReplayMismatch ErrorCode = "REPLAY_MISMATCH"
)

// CommandError reports why a command did not execute. A command that
// fails leaves the world state and command log untouched.
type CommandError struct {
	Code      ErrorCode
	CommandID string
	System    string
	Message   string
	Err       error
}

func (e *CommandError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.CommandID != "" {
		return fmt.Sprintf("%s: %s (command=%s, system=%s)", e.Code, msg, e.CommandID, e.System)
	}
	return fmt.Sprintf("%s: %s (system=%s)", e.Code, msg, e.System)
}

func (e *CommandError) Unwrap() error { return e.Err }

// CodeOf returns the code of the first *CommandError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsDenied reports whether err is an authority rejection.
func IsDenied(err error) bool {
	return errors.Is(err, ErrAuthorityDenied)
}

// ReplayMismatchError reports a replay that did not reproduce the live
// state.
type ReplayMismatchError struct {
	LiveHash     string
	ReplayedHash string
	Commands     int
}

func (e *ReplayMismatchError) Error() string {
	return fmt.Sprintf("%s: replay of %d commands produced %s, live state is %s",
		ErrCodeReplayMismatch, e.Commands, e.ReplayedHash, e.LiveHash)
}
