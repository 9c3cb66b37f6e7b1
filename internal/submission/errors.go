package submission

import (
	"errors"
	"fmt"
)

// PipelineErrorCode classifies submission attempt failures that occur before
// a SubmissionRecord is written.
type PipelineErrorCode string

const (
	// ErrSettingsRequired means the business has no valid NINO configured.
	// The caller can route the user to settings instead of showing a
	// generic failure.
	ErrSettingsRequired PipelineErrorCode = "SETTINGS_REQUIRED"
	// ErrDeclarationIncomplete means the legal declaration is not fully
	// acknowledged.
	ErrDeclarationIncomplete PipelineErrorCode = "DECLARATION_INCOMPLETE"
	// ErrAlreadyInFlight means another attempt for the same period is
	// currently connecting or submitting.
	ErrAlreadyInFlight PipelineErrorCode = "ALREADY_IN_FLIGHT"
	// ErrAuthDenied means the user declined or failed authorization.
	ErrAuthDenied PipelineErrorCode = "AUTH_DENIED"
	// ErrAuthTimeout means the OAuth flow did not finish within its bound.
	ErrAuthTimeout PipelineErrorCode = "TIMEOUT"
	// ErrCancelled means the user cancelled before submission started.
	ErrCancelled PipelineErrorCode = "CANCELLED"
)

// PipelineError is a typed pre-submission failure.
type PipelineError struct {
	Code    PipelineErrorCode
	Message string
	Cause   error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// AsPipelineError extracts a *PipelineError from err's chain.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
