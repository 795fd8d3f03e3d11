package invoke

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCancelled is the cause recorded on a Session that was cancelled by its caller,
// either through [Session.Cancel] or because the context passed to [Client.Submit] ended.
var ErrCancelled = errors.New("invocation cancelled")

// ErrNotInvoker is returned by [Client.Generate] when the configured Transport does not
// implement [Invoker].
var ErrNotInvoker = errors.New("transport does not support one-shot invocation")

// InvalidRequestErr is returned synchronously by [Client.Submit] and [Client.Generate]
// when a Request is missing a required field. No network call is made.
type InvalidRequestErr struct {
	// Field is the name of the offending Request field
	Field string
	// Reason describes why the field is invalid
	Reason string
}

func (i *InvalidRequestErr) Error() string {
	return fmt.Sprintf("invalid request field %s: %s", i.Field, i.Reason)
}

// TransportErr is a network or service level failure reported by a Transport, either
// while opening the stream or in the middle of it.
//
// StatusCode carries the HTTP status of the remote service when it is known, and is
// zero otherwise.
type TransportErr struct {
	// Op names the transport operation that failed, e.g. "open stream" or "receive"
	Op         string
	StatusCode int
	Err        error
}

func (t *TransportErr) Error() string {
	if t.StatusCode != 0 {
		return fmt.Sprintf("transport error during %s (HTTP %d): %v", t.Op, t.StatusCode, t.Err)
	}
	return fmt.Sprintf("transport error during %s: %v", t.Op, t.Err)
}

func (t *TransportErr) Unwrap() error {
	return t.Err
}

// DecodeErr is the cause recorded on a Session when a Chunk payload could not be decoded
// into a completion fragment. Payload holds a copy of the offending bytes.
type DecodeErr struct {
	Payload []byte
	Err     error
}

func (d *DecodeErr) Error() string {
	return fmt.Sprintf("failed to decode chunk: %v", d.Err)
}

func (d *DecodeErr) Unwrap() error {
	return d.Err
}

// IsRetryable reports whether err is a TransportErr the remote service marked as
// transient: HTTP 429 or any 5xx status. The core never retries on its own; this is a
// helper for callers that implement their own policy.
func IsRetryable(err error) bool {
	var te *TransportErr
	if !errors.As(err, &te) {
		return false
	}
	return te.StatusCode == http.StatusTooManyRequests ||
		(te.StatusCode >= 500 && te.StatusCode <= 599)
}
