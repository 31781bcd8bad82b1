package boundary

import (
	"errors"
	"fmt"
	"strings"
)

// ContractViolation reports malformed or missing input at the boundary.
// It is always fatal to the current request.
type ContractViolation struct {
	// Entity is the offending entity id, empty for top-level fields.
	Entity string

	// Field is the offending field path.
	Field string

	// Reason says what was expected.
	Reason string
}

func (e *ContractViolation) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("contract violation: entity %q field %q: %s", e.Entity, e.Field, e.Reason)
	}
	return fmt.Sprintf("contract violation: field %q: %s", e.Field, e.Reason)
}

// ContaminationError reports that a raw state container reached code that
// must only see typed views.
type ContaminationError struct {
	// Where names the code path that received the raw container.
	Where string

	// Keys are the characteristic top-level keys that were found.
	Keys []string
}

func (e *ContaminationError) Error() string {
	return fmt.Sprintf("contamination: raw state container reached %s (keys: %s)", e.Where, strings.Join(e.Keys, ", "))
}

// IsContractViolation reports whether err is or wraps a *ContractViolation.
func IsContractViolation(err error) bool {
	var cv *ContractViolation
	return errors.As(err, &cv)
}

// IsContamination reports whether err is or wraps a *ContaminationError.
func IsContamination(err error) bool {
	var ce *ContaminationError
	return errors.As(err, &ce)
}

func violation(entity, field, format string, args ...any) *ContractViolation {
	return &ContractViolation{Entity: entity, Field: field, Reason: fmt.Sprintf(format, args...)}
}
