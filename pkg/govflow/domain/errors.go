package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode identifies the class of a workflow error.
type ErrorCode string

const (
	ErrUnknown             ErrorCode = "UNKNOWN"
	ErrValidation          ErrorCode = "VALIDATION"
	ErrNotFound            ErrorCode = "NOT_FOUND"
	ErrForbidden           ErrorCode = "FORBIDDEN"
	ErrInvalidState        ErrorCode = "INVALID_STATE"
	ErrInvalidTransition   ErrorCode = "INVALID_TRANSITION"
	ErrConditionNotMet     ErrorCode = "CONDITION_NOT_MET"
	ErrCommentRequired     ErrorCode = "COMMENT_REQUIRED"
	ErrAttachmentsRequired ErrorCode = "ATTACHMENTS_REQUIRED"
	ErrVotingRequired      ErrorCode = "VOTING_REQUIRED"
	ErrInvariantViolation  ErrorCode = "INVARIANT_VIOLATION"
	ErrVersionConflict     ErrorCode = "VERSION_CONFLICT"
)

// Violation is a single problem found while validating a definition or field values.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error is the error type returned by every workflow operation.
type Error struct {
	// Code identifies the error type
	Code ErrorCode

	// Message provides human-readable error details
	Message string

	// Op describes the operation that failed
	Op string

	// Cause is the underlying error that triggered this one
	Cause error

	// Violations lists every problem for ErrValidation
	Violations []Violation

	// Condition describes the failing guard for ErrConditionNotMet
	Condition string
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Violations) > 0 {
		parts := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			if v.Field != "" {
				parts = append(parts, v.Field+": "+v.Message)
			} else {
				parts = append(parts, v.Message)
			}
		}
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is compares error codes so errors.Is(err, domain.NotFound) works for any wrapped Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinel values for errors.Is comparisons.
var (
	NotFound            = &Error{Code: ErrNotFound}
	Forbidden           = &Error{Code: ErrForbidden}
	Validation          = &Error{Code: ErrValidation}
	InvalidState        = &Error{Code: ErrInvalidState}
	InvalidTransition   = &Error{Code: ErrInvalidTransition}
	ConditionNotMet     = &Error{Code: ErrConditionNotMet}
	CommentRequired     = &Error{Code: ErrCommentRequired}
	AttachmentsRequired = &Error{Code: ErrAttachmentsRequired}
	VotingRequired      = &Error{Code: ErrVotingRequired}
	InvariantViolation  = &Error{Code: ErrInvariantViolation}
	VersionConflict     = &Error{Code: ErrVersionConflict}
)

// NewError creates an Error with the given code.
func NewError(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError aggregates violations into one ErrValidation.
func NewValidationError(op, message string, violations []Violation) *Error {
	return &Error{Code: ErrValidation, Op: op, Message: message, Violations: violations}
}

// Wrap attaches an operation and code to an underlying error.
func Wrap(err error, code ErrorCode, op, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Message: message, Cause: err}
}

// CodeOf returns the code of the first Error in the chain, or ErrUnknown.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// ViolationsOf returns the aggregated violations of a validation error.
func ViolationsOf(err error) []Violation {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}
