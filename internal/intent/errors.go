package intent

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRepairExhausted marks the case where both the original candidate and the
// one-shot repaired candidate failed schema validation. Callers distinguish
// it from a bare validation error so they know a repair was already spent.
var ErrRepairExhausted = errors.New("plan schema validation failed after repair attempt")

// FieldError describes one constraint violation at a JSON path.
type FieldError struct {
	Path       string `json:"path"`
	Constraint string `json:"constraint"`
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Path, f.Constraint)
}

// ValidationError enumerates every offending field of a rejected document,
// not just the first one found.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// GenerationError wraps an outright failure of the upstream plan producer
// (network, quota, transport). It is distinct from a validation error so
// callers can retry later instead of asking the user to rephrase.
type GenerationError struct {
	Attempt int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("plan generation failed (attempt %d): %v", e.Attempt, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// RepairError carries both failed validations behind ErrRepairExhausted.
type RepairError struct {
	First  *ValidationError
	Second *ValidationError
}

func (e *RepairError) Error() string {
	return fmt.Sprintf("%v: first attempt: %v; repaired attempt: %v", ErrRepairExhausted, e.First, e.Second)
}

func (e *RepairError) Unwrap() error { return ErrRepairExhausted }
