package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports caller input the gateway refuses to pass upstream.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Media resolution errors for outbound MMS.
var (
	ErrMediaNotFound = errors.New("media file not found")
	ErrMediaTooLarge = errors.New("media file exceeds provider size limit")
)

// TransportError wraps a network-level failure reaching the provider. The
// request may not have been received; retrying is the caller's decision, the
// gateway never retries on its own.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError is an application-level rejection reported by the provider,
// such as bad credentials or insufficient balance. Code is the provider's
// status string; Message is a human-readable description. Retrying the same
// request will not help.
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider rejected request: %s (%s)", e.Message, e.Code)
}

// UnknownEventError marks a webhook payload whose event type the gateway
// does not handle.
type UnknownEventError struct {
	EventType string
}

func (e *UnknownEventError) Error() string {
	if e.EventType == "" {
		return "webhook payload carries no event type"
	}
	return fmt.Sprintf("unhandled webhook event type %q", e.EventType)
}

// MalformedPayloadError marks a webhook payload that decoded but is missing
// required fields or carries values of the wrong shape.
type MalformedPayloadError struct {
	Reason string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed webhook payload: %s", e.Reason)
}

// IsRetryable reports whether err is a transient transport failure that the
// caller may retry.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
