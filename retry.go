package invoke

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// Default parameters for the ExponentialBackOff if no base policy is provided.
	defaultRetryInitialInterval = 500 * time.Millisecond
	defaultRetryMaxInterval     = 15 * time.Second
	// Default MaxElapsedTime if no RetryOptions are given.
	defaultRetryMaxElapsedTime = 1 * time.Minute
)

// RetryTransport retries opening a stream, and one-shot invocations, when the failure is
// a transient *TransportErr (see [IsRetryable]).
//
// Only OpenStream is retried, never a stream that has already delivered events, so a
// caller can not observe the same fragment twice.
type RetryTransport struct {
	TransportWrapper
	newBackOff   func() backoff.BackOff
	retryOptions []backoff.RetryOption
}

// NewRetryTransport wraps t. A nil baseBo selects an exponential policy
// (Initial: 500ms, Max: 15s), created afresh for every call so concurrent sessions do
// not share its state. A non-nil baseBo is reset and shared by all calls and must be
// safe for concurrent use if the transport is. When no opts are given, retries stop
// after one minute. Do not pass backoff.WithBackOff in opts.
func NewRetryTransport(t Transport, baseBo backoff.BackOff, opts ...backoff.RetryOption) *RetryTransport {
	newBackOff := func() backoff.BackOff {
		baseBo.Reset()
		return baseBo
	}
	if baseBo == nil {
		newBackOff = func() backoff.BackOff {
			exp := backoff.NewExponentialBackOff()
			exp.InitialInterval = defaultRetryInitialInterval
			exp.MaxInterval = defaultRetryMaxInterval
			return exp
		}
	}
	if len(opts) == 0 {
		opts = []backoff.RetryOption{backoff.WithMaxElapsedTime(defaultRetryMaxElapsedTime)}
	}
	return &RetryTransport{
		TransportWrapper: TransportWrapper{Inner: t},
		newBackOff:       newBackOff,
		retryOptions:     opts,
	}
}

// WithRetry returns a WrapperFunc adding a RetryTransport layer.
func WithRetry(baseBo backoff.BackOff, opts ...backoff.RetryOption) WrapperFunc {
	return func(t Transport) Transport {
		return NewRetryTransport(t, baseBo, opts...)
	}
}

func (r *RetryTransport) OpenStream(ctx context.Context, req Request) (Source, error) {
	return retry(ctx, r, func() (Source, error) {
		return r.TransportWrapper.OpenStream(ctx, req)
	})
}

func (r *RetryTransport) Invoke(ctx context.Context, req Request) (Response, error) {
	return retry(ctx, r, func() (Response, error) {
		return r.TransportWrapper.Invoke(ctx, req)
	})
}

func retry[T any](ctx context.Context, r *RetryTransport, call func() (T, error)) (T, error) {
	operation := func() (T, error) {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, backoff.Permanent(err)
		}
		v, err := call()
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	callOpts := make([]backoff.RetryOption, 0, 1+len(r.retryOptions))
	callOpts = append(callOpts, backoff.WithBackOff(r.newBackOff()))
	callOpts = append(callOpts, r.retryOptions...)

	v, err := backoff.Retry(ctx, operation, callOpts...)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return v, permanent.Err
		}
		return v, err
	}
	return v, nil
}

var (
	_ Transport = (*RetryTransport)(nil)
	_ Invoker   = (*RetryTransport)(nil)
)
