package platform

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed remote call. The kind decides the recovery
// policy: Network, ServerError and RateLimited are retried with bounded
// backoff; Auth halts the protocol; Validation and GraphUserError are
// permanent per-record failures requiring a data fix.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindAuth           ErrorKind = "auth"
	KindRateLimited    ErrorKind = "rate_limited"
	KindValidation     ErrorKind = "validation"
	KindServerError    ErrorKind = "server_error"
	KindGraphUserError ErrorKind = "graph_user_error"
)

// UserError is one entry of a graph mutation's userErrors list.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// RemoteError is the tagged union returned by the remote clients.
type RemoteError struct {
	Kind    ErrorKind
	Message string

	// RetryAfter carries the server retry hint for KindRateLimited.
	RetryAfter time.Duration

	// FieldErrors carries field-level detail for KindValidation.
	FieldErrors map[string]string

	// UserErrors carries the userErrors list for KindGraphUserError.
	UserErrors []UserError

	// Err is the underlying transport error, if any.
	Err error
}

// Error implements error.
func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is/As on the transport cause.
func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the retry policy may re-attempt the call.
func (e *RemoteError) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindServerError, KindRateLimited:
		return true
	}
	return false
}

// Permanent reports a failure that requires a data or credential fix.
func (e *RemoteError) Permanent() bool {
	return !e.Retryable()
}

// AsRemoteError extracts a RemoteError from an error chain.
func AsRemoteError(err error) (*RemoteError, bool) {
	var rerr *RemoteError
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}

// FieldDetail flattens field-level errors into a map regardless of kind.
func (e *RemoteError) FieldDetail() map[string]string {
	if len(e.FieldErrors) > 0 {
		return e.FieldErrors
	}
	if len(e.UserErrors) == 0 {
		return nil
	}
	fields := make(map[string]string, len(e.UserErrors))
	for _, ue := range e.UserErrors {
		key := "base"
		if len(ue.Field) > 0 {
			key = ue.Field[len(ue.Field)-1]
		}
		fields[key] = ue.Message
	}
	return fields
}

// --- Constructors ---

// NewNetworkError wraps a transport failure (including timeouts).
func NewNetworkError(err error) *RemoteError {
	return &RemoteError{Kind: KindNetwork, Message: "request failed", Err: err}
}

// NewAuthError marks rejected platform credentials.
func NewAuthError(message string) *RemoteError {
	return &RemoteError{Kind: KindAuth, Message: message}
}

// NewRateLimitedError carries the server retry hint when present.
func NewRateLimitedError(retryAfter time.Duration) *RemoteError {
	return &RemoteError{Kind: KindRateLimited, Message: "call budget exhausted", RetryAfter: retryAfter}
}

// NewValidationError carries field-level rejection detail.
func NewValidationError(message string, fields map[string]string) *RemoteError {
	return &RemoteError{Kind: KindValidation, Message: message, FieldErrors: fields}
}

// NewServerError marks a 5xx response.
func NewServerError(status int, body string) *RemoteError {
	return &RemoteError{Kind: KindServerError, Message: fmt.Sprintf("server returned %d: %s", status, body)}
}

// NewGraphUserError wraps a mutation's userErrors list.
func NewGraphUserError(userErrors []UserError) *RemoteError {
	msg := "mutation rejected"
	if len(userErrors) > 0 {
		msg = userErrors[0].Message
	}
	return &RemoteError{Kind: KindGraphUserError, Message: msg, UserErrors: userErrors}
}
