package contracts

import (
	"fmt"
	"time"
)

// Error codes carried in error response payloads.
const (
	ErrCodeHandler = "HANDLER_ERROR"
)

// ConnectionError reports that the broker transport could not be established
// or has been lost. It is fatal to the operation that observes it.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("broker connection failed (%s): %v", e.URL, e.Err)
	}
	return fmt.Sprintf("broker connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError reports that a request received no reply within its deadline.
// The request is abandoned; any late reply is dropped by the transport.
type TimeoutError struct {
	Subject string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request on %s timed out after %s", e.Subject, e.Timeout)
}

// DecodeError reports envelope bytes that could not be decoded. Inbound
// decode failures are logged and the message dropped; they never terminate a
// subscription.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envelope decode failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("envelope decode failed: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// HandlerError reports a reply handler that failed or panicked. The client
// converts it into an error response envelope so the requester never has to
// time out on a handler bug.
type HandlerError struct {
	Subject string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler on %s failed: %v", e.Subject, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// StreamProvisionError reports a durable stream declaration that failed for
// a reason other than the stream already existing.
type StreamProvisionError struct {
	Stream string
	Err    error
}

func (e *StreamProvisionError) Error() string {
	return fmt.Sprintf("stream %s provisioning failed: %v", e.Stream, e.Err)
}

func (e *StreamProvisionError) Unwrap() error { return e.Err }

// SubjectError reports an invalid subject or subject pattern.
type SubjectError struct {
	Subject string
	Reason  string
}

func (e *SubjectError) Error() string {
	return fmt.Sprintf("invalid subject %q: %s", e.Subject, e.Reason)
}
