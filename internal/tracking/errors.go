package tracking

import (
	"errors"
	"fmt"
)

// Validation codes carried by ValidationError.Code.
const (
	CodeInvalidDuration           = "InvalidDuration"
	CodeDurationExceedsDay        = "DurationExceedsDay"
	CodeDateAfterSubtaskDeadline  = "DateAfterSubtaskDeadline"
	CodeFutureDateNotAllowed      = "FutureDateNotAllowed"
	CodeSubtaskTaskMismatch       = "SubtaskTaskMismatch"
	CodeDeadlineBeforeStart       = "DeadlineBeforeStart"
	CodeSubtaskDeadlineOutOfRange = "SubtaskDeadlineOutOfRange"
	CodeInvalidTimeRange          = "InvalidTimeRange"
	CodeInvalidDate               = "InvalidDate"
	CodeTimeLogsDisabled          = "TimeLogsDisabled"
	CodeSubtasksDisabled          = "SubtasksDisabled"
	CodeInvalidRecurrence         = "InvalidRecurrence"
)

// Warning codes carried by Warning.Code.
const (
	WarnLongDuration         = "LongDuration"
	WarnFutureDate           = "FutureDate"
	WarnAfterSubtaskDeadline = "AfterSubtaskDeadline"
	WarnInvalidDateRange     = "InvalidDateRange"
	WarnInvalidDeadline      = "InvalidDeadline"
)

// ValidationError is a user-correctable input problem. It aborts the write.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(code, field, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError builds a coded error for checks made outside this package.
func NewValidationError(code, field, message string) *ValidationError {
	return &ValidationError{Code: code, Field: field, Message: message}
}

// AsValidation unwraps err into a ValidationError when it is one.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// Warning is advisory only and never blocks a write.
type Warning struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}
