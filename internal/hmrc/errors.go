// Package hmrc holds the HMRC API client contract, its HTTP implementation
// and the browser-based OAuth connector.
package hmrc

import "fmt"

// ClientErrorCode represents specific HMRC client error types.
type ClientErrorCode string

const (
	// ErrAuthExpired means the API returned 401: the bearer token is invalid
	// or expired and a re-authentication is required.
	ErrAuthExpired ClientErrorCode = "AUTH_EXPIRED"
	// ErrRemoteRejected means HMRC refused the submitted data.
	ErrRemoteRejected ClientErrorCode = "REMOTE_REJECTED"
	// ErrUnavailable covers transport failures and 5xx responses.
	ErrUnavailable ClientErrorCode = "SERVICE_UNAVAILABLE"
	// ErrTimeout means the request exceeded its deadline.
	ErrTimeout ClientErrorCode = "REQUEST_TIMEOUT"
)

// ClientError is a structured error for HMRC API failures.
type ClientError struct {
	Code      ClientErrorCode
	Message   string
	Retryable bool
	// RemoteCode carries HMRC's own error code on a rejection.
	RemoteCode string
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ClientError) Unwrap() error { return e.Cause }

// IsRetryable returns whether this error is retryable at the transport
// level. 401s are never transport-retryable; they require re-authentication
// first.
func (e *ClientError) IsRetryable() bool { return e.Retryable }
