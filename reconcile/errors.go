/*
errors.go - Error types for the reconciliation engine

PURPOSE:
  Sentinels for errors.Is and structured errors carrying the context an
  operator needs to inspect a source extract or a failed write.

ERROR CATEGORIES:
  1. Schema errors - a source file or row does not match its adapter
  2. Persistence errors - any fault reported by a Gateway
  3. Validation errors - manual create/update rejected before any write

SEE ALSO:
  - normalize.go: raises schema errors
  - store/sqlstore/sqlstore.go: raises persistence errors
  - catalog/service.go: raises validation errors
*/
package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSchemaMismatch is returned when a source file lacks a required column
	// or a row carries a numeric id component that cannot be coerced.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrPersistence wraps every store fault.
	ErrPersistence = errors.New("persistence error")

	// ErrValidation is returned when a manual create or update is rejected.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateID is returned by a strict insert of an existing id.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrNotFound is returned when a referenced row doesn't exist.
	ErrNotFound = errors.New("row not found")

	ErrUnknownView   = errors.New("unknown view")
	ErrUnknownColumn = errors.New("unknown column")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SchemaMismatchError reports the columns a source file is missing. It is
// file-scoped: the whole file is skipped.
type SchemaMismatchError struct {
	Format  string
	Source  string
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("schema mismatch: %s extract %q is missing columns [%s]",
		e.Format, e.Source, strings.Join(e.Missing, ", "))
}

func (e *SchemaMismatchError) Unwrap() error {
	return ErrSchemaMismatch
}

// RowIssue reports a single source row dropped during normalization.
type RowIssue struct {
	Line   int // 1-based data line, header excluded
	Column string
	Value  string
	Reason string
}

func (e *RowIssue) Error() string {
	var b strings.Builder
	if e.Line > 0 {
		fmt.Fprintf(&b, "row %d: ", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, "column %s value %q: ", e.Column, e.Value)
	}
	b.WriteString(e.Reason)
	return b.String()
}

func (e *RowIssue) Unwrap() error {
	return ErrSchemaMismatch
}

// PersistenceError reports a failed store operation. The operation's effect
// is considered not applied.
type PersistenceError struct {
	Op    string
	Table string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap exposes both the cause and ErrPersistence.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// Persistence wraps err as a *PersistenceError, or returns nil.
func Persistence(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Table: table, Err: err}
}

// FieldError is a single rejected input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists the rejected fields of a manual create or update.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Add appends a field error.
func (e *ValidationError) Add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// OrNil returns e when it holds at least one field error.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
