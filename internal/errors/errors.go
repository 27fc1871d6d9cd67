// Package errors holds the error taxonomy shared by every pipeline layer.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Error category checking functions
// - StageError, which tags a failure with the layer and table it happened in
// - Error wrapping utilities

package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// Schema contract violations
	ErrSchemaViolation = errors.New("schema contract violation")
	ErrMissingColumn   = errors.New("missing column")
	ErrTableNotFound   = errors.New("table not found")

	// Storage / connectivity
	ErrStorage          = errors.New("storage error")
	ErrConnectionFailed = errors.New("connection failed")
	ErrTimeout          = errors.New("timeout")

	// Configuration
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingField  = errors.New("missing required field")

	// Sources
	ErrSourceNotFound = errors.New("source not found")
	ErrInvalidSource  = errors.New("invalid source format")

	// Internal
	ErrInternal      = errors.New("internal error")
	ErrNotRunning    = errors.New("not running")
	ErrWriterClosed  = errors.New("writer is closed")
	ErrUnknownDriver = errors.New("unknown warehouse driver")
)

// ============================================================================
// Helper functions for error checking
// ============================================================================

// Is is a convenience wrapper for errors.Is
var Is = errors.Is

// As is a convenience wrapper for errors.As
var As = errors.As

// Join is a convenience wrapper for errors.Join
var Join = errors.Join

// New is a convenience wrapper for errors.New
var New = errors.New

// IsSchemaViolation returns true if err breaks a table contract.
func IsSchemaViolation(err error) bool {
	return errors.Is(err, ErrSchemaViolation) ||
		errors.Is(err, ErrMissingColumn) ||
		errors.Is(err, ErrTableNotFound)
}

// IsValidation returns true if err is a configuration validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingField)
}

// IsRetriable returns true if re-running the whole pipeline may succeed.
// Schema violations and bad config are never retriable.
func IsRetriable(err error) bool {
	if IsSchemaViolation(err) || IsValidation(err) {
		return false
	}
	return errors.Is(err, ErrStorage) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrTimeout)
}

// ============================================================================
// Stage errors
// ============================================================================

// StageError reports which layer (and optionally which table) a run failed in.
type StageError struct {
	Layer string
	Table string
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s stage failed on %s: %v", e.Layer, e.Table, e.Err)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Layer, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with layer and table context. A nil err stays nil.
// If err already carries a StageError for the same layer it is returned as is.
func NewStageError(layer, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) && se.Layer == layer {
		return err
	}
	return &StageError{Layer: layer, Table: table, Err: err}
}

// ============================================================================
// Error wrapping utilities
// ============================================================================

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Storage marks err as a storage failure while keeping the original chain.
func Storage(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// ============================================================================
// Error constructors with context
// ============================================================================

// NewMissingColumn reports a column absent from an upstream table.
func NewMissingColumn(table, column string) error {
	return fmt.Errorf("table %q: %w %q: %w", table, ErrMissingColumn, column, ErrSchemaViolation)
}

// NewTableNotFound reports an upstream table that does not exist.
func NewTableNotFound(table string) error {
	return fmt.Errorf("%w: %q: %w", ErrTableNotFound, table, ErrSchemaViolation)
}

// NewValidation creates a validation error with context.
func NewValidation(field, reason string) error {
	return fmt.Errorf("invalid %s: %s: %w", field, reason, ErrInvalidConfig)
}

// NewMissingField creates a missing field error.
func NewMissingField(field string) error {
	return fmt.Errorf("%s: %w", field, ErrMissingField)
}

// ============================================================================
// Validation Errors Collection
// ============================================================================

// ValidationErrors collects multiple validation errors.
type ValidationErrors struct {
	Errors []error
}

// NewValidationErrors creates a new ValidationErrors collector.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add adds an error to the collection.
func (v *ValidationErrors) Add(err error) {
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
}

// AddField adds a field validation error.
func (v *ValidationErrors) AddField(field, reason string) {
	v.Errors = append(v.Errors, NewValidation(field, reason))
}

// AddMissing adds a missing field error.
func (v *ValidationErrors) AddMissing(field string) {
	v.Errors = append(v.Errors, NewMissingField(field))
}

// Error implements the error interface.
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	if len(v.Errors) == 1 {
		return v.Errors[0].Error()
	}

	msg := fmt.Sprintf("validation failed with %d errors:", len(v.Errors))
	for _, err := range v.Errors {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Err returns nil if no errors, otherwise returns the ValidationErrors.
func (v *ValidationErrors) Err() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// Unwrap returns all collected errors for errors.Is/As support.
func (v *ValidationErrors) Unwrap() []error {
	return v.Errors
}
