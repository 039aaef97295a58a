// Package domain defines the error taxonomy and the collaborator ports shared by
// the dialect, blocking and estimation layers.
package domain

import (
	"fmt"
	"strings"
)

// NotFoundError indicates a named object (comparison, table, level) was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// CapabilityUnsupportedError indicates a dialect lacks a requested SQL capability.
// It is an expected outcome: callers either check availability first or catch it
// and substitute a fallback expression.
type CapabilityUnsupportedError struct {
	Backend    string
	Capability string
}

func (e *CapabilityUnsupportedError) Error() string {
	return fmt.Sprintf("backend %q does not support capability %q", e.Backend, e.Capability)
}

// UnknownDialectError indicates a dialect name has no matching profile.
// Ambiguous is set when more than one profile claims the name, which is a
// registry configuration bug rather than a caller mistake.
type UnknownDialectError struct {
	Name      string
	Valid     []string
	Ambiguous bool
}

func (e *UnknownDialectError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("dialect name %q is registered more than once", e.Name)
	}
	return fmt.Sprintf("unknown dialect %q (valid dialects: %s)", e.Name, strings.Join(e.Valid, ", "))
}

// DegenerateInputError indicates zero-row or zero-pair input to the sampling controller.
type DegenerateInputError struct {
	Message  string
	Counts   []int64
	MaxPairs float64
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("%s (row counts %v, max pairs %g)", e.Message, e.Counts, e.MaxPairs)
}

// UnsupportedOptionError indicates a feature flag incompatible with the chosen backend.
type UnsupportedOptionError struct {
	Option  string
	Backend string
	Message string
}

func (e *UnsupportedOptionError) Error() string {
	msg := fmt.Sprintf("option %q is not supported by backend %q", e.Option, e.Backend)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// SparseTrainingDataWarning lists comparison levels that saw no observations
// during training. It is non-fatal: the affected levels keep their previous value.
type SparseTrainingDataWarning struct {
	Levels []string // "<comparison>: <level label>"
}

func (w *SparseTrainingDataWarning) Error() string {
	return fmt.Sprintf("%d comparison level(s) were not observed in the training sample: %s",
		len(w.Levels), strings.Join(w.Levels, "; "))
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrCapabilityUnsupported creates a CapabilityUnsupportedError.
func ErrCapabilityUnsupported(backend, capability string) *CapabilityUnsupportedError {
	return &CapabilityUnsupportedError{Backend: backend, Capability: capability}
}

// ErrUnknownDialect creates an UnknownDialectError listing the valid names.
func ErrUnknownDialect(name string, valid []string) *UnknownDialectError {
	return &UnknownDialectError{Name: name, Valid: valid}
}

// ErrUnsupportedOption creates an UnsupportedOptionError with a formatted message.
func ErrUnsupportedOption(option, backend, format string, args ...interface{}) *UnsupportedOptionError {
	return &UnsupportedOptionError{Option: option, Backend: backend, Message: fmt.Sprintf(format, args...)}
}

// ErrDegenerateInput creates a DegenerateInputError with a formatted message.
func ErrDegenerateInput(counts []int64, maxPairs float64, format string, args ...interface{}) *DegenerateInputError {
	return &DegenerateInputError{Message: fmt.Sprintf(format, args...), Counts: counts, MaxPairs: maxPairs}
}
