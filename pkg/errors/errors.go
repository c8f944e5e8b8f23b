package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryIngestion     ErrorCategory = "ingestion"
	CategoryNormalization ErrorCategory = "normalization"
	CategoryDetector      ErrorCategory = "detector"
	CategoryPersistence   ErrorCategory = "persistence"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryValidation    ErrorCategory = "validation"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Ingestion errors
	CodeUnsupportedFormat ErrorCode = "unsupported_format"
	CodeSourceUnreadable  ErrorCode = "source_unreadable"
	CodeMissingColumn     ErrorCode = "missing_column"

	// Normalization warnings
	CodeFieldDefaulted ErrorCode = "field_defaulted"
	CodeRowDropped     ErrorCode = "row_dropped"

	// Detector errors
	CodeInvalidParameters ErrorCode = "invalid_parameters"
	CodeUnknownDetector   ErrorCode = "unknown_detector"
	CodeDetectorPanic     ErrorCode = "detector_panic"

	// Persistence errors
	CodeStoreUnavailable ErrorCode = "store_unavailable"
	CodeStoreCorrupted   ErrorCode = "store_corrupted"
	CodeNotFound         ErrorCode = "not_found"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeMissingConfig ErrorCode = "missing_config"

	// Validation errors
	CodeMissingField ErrorCode = "missing_field"
	CodeInvalidValue ErrorCode = "invalid_value"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// RedflagError is the base error type for all application errors
type RedflagError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *RedflagError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", msg, e.Suggestion)
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *RedflagError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *RedflagError) GetExitCode() int {
	switch e.Category {
	case CategoryIngestion:
		return 2
	case CategoryValidation, CategoryNormalization:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryDetector, CategoryInternal:
		return 5
	case CategoryPersistence:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *RedflagError) WithContext(key string, value interface{}) *RedflagError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *RedflagError) WithSuggestion(suggestion string) *RedflagError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RedflagError
func New(category ErrorCategory, code ErrorCode, message string) *RedflagError {
	return &RedflagError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with RedflagError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *RedflagError {
	if err == nil {
		return nil
	}

	return &RedflagError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, cause error) *RedflagError {
	if cause != nil {
		return Wrap(cause, category, code, message)
	}
	return New(category, code, message)
}

// IngestionError reports a source that cannot be turned into rows at all.
// It aborts ingestion of that source only.
func IngestionError(code ErrorCode, source string, err error) *RedflagError {
	var message, suggestion string

	switch code {
	case CodeUnsupportedFormat:
		message = fmt.Sprintf("unsupported source format: %s", source)
		suggestion = "convert the export to CSV, JSON records or plain report text"
	case CodeSourceUnreadable:
		message = fmt.Sprintf("source could not be read: %s", source)
		suggestion = "check that the file exists and is readable"
	case CodeMissingColumn:
		message = fmt.Sprintf("source has no recognizable date or amount column: %s", source)
		suggestion = "make sure the header row names a date and an amount column"
	default:
		message = fmt.Sprintf("ingestion failed for source: %s", source)
		suggestion = "check the source file and try again"
	}

	return build(CategoryIngestion, code, message, err).
		WithSuggestion(suggestion).
		WithContext("source", source)
}

// DetectorError reports a failure isolated to a single rule.
func DetectorError(code ErrorCode, ruleID string, err error) *RedflagError {
	var message, suggestion string

	switch code {
	case CodeInvalidParameters:
		message = fmt.Sprintf("invalid parameters for rule %s", ruleID)
		suggestion = "review the rule parameters against the documented defaults"
	case CodeUnknownDetector:
		message = fmt.Sprintf("rule %s references an unknown detector", ruleID)
		suggestion = "use one of the built-in detector ids"
	case CodeDetectorPanic:
		message = fmt.Sprintf("detector for rule %s failed unexpectedly", ruleID)
		suggestion = "this is likely a bug - please report it with the rule parameters"
	default:
		message = fmt.Sprintf("detector error for rule %s", ruleID)
		suggestion = "check the rule configuration"
	}

	return build(CategoryDetector, code, message, err).
		WithSuggestion(suggestion).
		WithContext("rule_id", ruleID)
}

// PersistenceError reports a case store failure. No partial writes are left behind.
func PersistenceError(code ErrorCode, caseID, operation string, err error) *RedflagError {
	var message, suggestion string

	switch code {
	case CodeStoreUnavailable:
		message = fmt.Sprintf("case store unavailable during %s for case %s", operation, caseID)
		suggestion = "check the store connection settings and retry"
	case CodeStoreCorrupted:
		message = fmt.Sprintf("stored %s document for case %s could not be decoded", operation, caseID)
		suggestion = "re-ingest the case sources to rebuild the document"
	case CodeNotFound:
		message = fmt.Sprintf("no %s stored for case %s", operation, caseID)
		suggestion = "ingest transactions for the case first"
	default:
		message = fmt.Sprintf("persistence error during %s for case %s", operation, caseID)
		suggestion = "retry the operation"
	}

	return build(CategoryPersistence, code, message, err).
		WithSuggestion(suggestion).
		WithContext("case_id", caseID).
		WithContext("operation", operation)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *RedflagError {
	var message, suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *RedflagError {
	var message, suggestion string

	switch code {
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeInvalidValue:
		message = fmt.Sprintf("invalid value in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	return build(CategoryValidation, code, message, err).
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *RedflagError {
	message := fmt.Sprintf("unexpected error during %s", operation)
	return build(CategoryInternal, code, message, err).
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total      int                   `json:"total"`
	ByCategory map[ErrorCategory]int `json:"by_category"`
	ByCode     map[ErrorCode]int     `json:"by_code"`
	Errors     []*RedflagError       `json:"errors"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*RedflagError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if summary.Errors == nil {
		summary.Errors = []*RedflagError{}
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// AsRedflagError extracts a RedflagError from an error chain
func AsRedflagError(err error) (*RedflagError, bool) {
	var redflagErr *RedflagError
	if errors.As(err, &redflagErr) {
		return redflagErr, true
	}
	return nil, false
}

// IsCategory reports whether any RedflagError in err's chain has the category.
func IsCategory(err error, category ErrorCategory) bool {
	e, ok := AsRedflagError(err)
	return ok && e.Category == category
}

// IsCode reports whether err's chain carries a RedflagError with the code.
func IsCode(err error, code ErrorCode) bool {
	e, ok := AsRedflagError(err)
	return ok && e.Code == code
}

// WrapIfNeeded wraps an error if it's not already a RedflagError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *RedflagError {
	if err == nil {
		return nil
	}

	if redflagErr, ok := AsRedflagError(err); ok {
		return redflagErr
	}

	return Wrap(err, category, code, message)
}
