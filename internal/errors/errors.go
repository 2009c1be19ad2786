// Package errors provides structured error types for csvreduce.
// All errors include a category, code, message, and fatal flag so that
// loaders and query callers can decide whether to continue or abort.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the stage that produced them.
type ErrorCategory string

const (
	ErrCategoryIO       ErrorCategory = "IO"
	ErrCategoryParse    ErrorCategory = "PARSE"
	ErrCategoryQuery    ErrorCategory = "QUERY"
	ErrCategoryReduce   ErrorCategory = "REDUCE"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// IO codes
	CodeFileUnreadable = "FILE_UNREADABLE"
	CodeListFailed     = "LIST_FAILED"

	// Parse codes
	CodeParseSkip = "PARSE_SKIP"

	// Query codes
	CodeInvalidParameters = "INVALID_PARAMETERS"
	CodeUnknownQuery      = "UNKNOWN_QUERY"
	CodeTableNotLoaded    = "TABLE_NOT_LOADED"

	// Reduce codes
	CodeWorkerFailed = "WORKER_FAILED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected  = "UNEXPECTED"
	CodeTableFrozen = "TABLE_FROZEN"
	CodeCanceled    = "CANCELED"
)

// CsvError is the structured error type used throughout the system.
type CsvError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
	// Fatal marks errors that abort the whole operation instead of one file or row.
	Fatal bool
}

// Error returns a formatted error string.
func (e *CsvError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CsvError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *CsvError) Is(target error) bool {
	var t *CsvError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new CsvError.
func New(category ErrorCategory, code, message string) *CsvError {
	return &CsvError{
		Category: category,
		Code:     code,
		Message:  message,
		Fatal:    isFatal(category, code),
	}
}

// Wrap creates a new CsvError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *CsvError {
	return &CsvError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
		Fatal:    isFatal(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *CsvError) WithDetails(details map[string]interface{}) *CsvError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsFatal checks whether an error (or its chain) aborts the whole operation.
func IsFatal(err error) bool {
	var ce *CsvError
	if errors.As(err, &ce) {
		return ce.Fatal
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a CsvError.
func GetCategory(err error) ErrorCategory {
	var ce *CsvError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a CsvError.
func GetCode(err error) string {
	var ce *CsvError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// isFatal: IO and parse failures are scoped to one file or row; everything
// else ends the call that produced it.
func isFatal(category ErrorCategory, code string) bool {
	switch category {
	case ErrCategoryIO, ErrCategoryParse:
		return false
	case ErrCategoryQuery:
		return code != CodeInvalidParameters
	default:
		return true
	}
}

// Convenience constructors for common errors.

func NewIOError(code, message string, cause error) *CsvError {
	return Wrap(ErrCategoryIO, code, message, cause)
}

func NewParseSkip(message string, cause error) *CsvError {
	return Wrap(ErrCategoryParse, CodeParseSkip, message, cause)
}

func NewQueryError(code, message string) *CsvError {
	return New(ErrCategoryQuery, code, message)
}

func NewReduceError(message string, cause error) *CsvError {
	return Wrap(ErrCategoryReduce, CodeWorkerFailed, message, cause)
}

func NewConfigError(message string, cause error) *CsvError {
	return Wrap(ErrCategoryConfig, CodeInvalidConfig, message, cause)
}

func NewInternalError(message string, cause error) *CsvError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// NewCanceledError wraps a context error so callers can still match
// context.Canceled or context.DeadlineExceeded through the chain.
func NewCanceledError(cause error) *CsvError {
	return Wrap(ErrCategoryInternal, CodeCanceled, "operation canceled", cause)
}
