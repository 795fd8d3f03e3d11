package invoke

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// FallbackConfig represents the configuration for when to fall back to the next transport.
type FallbackConfig struct {
	// ShouldFallback decides, from the error returned by the current transport, whether to
	// try the next one. If nil, IsRetryable is used, which falls back on HTTP 429 and 5xx.
	ShouldFallback func(err error) bool
}

// FallbackTransport opens streams on the first of several transports that succeeds.
//
// Fallback happens only while opening a stream or during a one-shot Invoke. Once a stream
// is open no fragment is ever replayed from another transport. The transports are
// expected to share a chunk format, e.g. the same gateway in several regions;
// FragmentPath reports the first transport's path.
type FallbackTransport struct {
	transports []Transport
	config     FallbackConfig
}

// NewFallbackTransport creates a FallbackTransport trying transports in order.
// It returns an error if fewer than 2 transports are provided.
func NewFallbackTransport(transports []Transport, config *FallbackConfig) (*FallbackTransport, error) {
	if len(transports) < 2 {
		return nil, errors.New("fallback transport requires at least 2 transports")
	}
	actual := FallbackConfig{}
	if config != nil {
		actual = *config
	}
	if actual.ShouldFallback == nil {
		actual.ShouldFallback = IsRetryable
	}
	return &FallbackTransport{transports: slices.Clone(transports), config: actual}, nil
}

// NewHTTPStatusFallbackConfig creates a FallbackConfig that falls back only on the given
// HTTP status codes.
func NewHTTPStatusFallbackConfig(statusCodes ...int) FallbackConfig {
	return FallbackConfig{
		ShouldFallback: func(err error) bool {
			var te *TransportErr
			return errors.As(err, &te) && slices.Contains(statusCodes, te.StatusCode)
		},
	}
}

// OpenStream tries each transport in turn until one opens a stream or fails with an error
// that should not fall back.
func (f *FallbackTransport) OpenStream(ctx context.Context, req Request) (Source, error) {
	return fallback(ctx, f, func(t Transport) (Source, error) {
		return t.OpenStream(ctx, req)
	})
}

// Invoke tries each transport implementing [Invoker]; the others are skipped.
func (f *FallbackTransport) Invoke(ctx context.Context, req Request) (Response, error) {
	tried := false
	resp, err := fallback(ctx, f, func(t Transport) (Response, error) {
		inv, ok := t.(Invoker)
		if !ok {
			return Response{}, errSkip
		}
		tried = true
		return inv.Invoke(ctx, req)
	})
	if !tried {
		return Response{}, fmt.Errorf("%w: no fallback transport supports it", ErrNotInvoker)
	}
	return resp, err
}

// FragmentPath reports the first transport's fragment path.
func (f *FallbackTransport) FragmentPath() string {
	if fp, ok := f.transports[0].(FragmentPather); ok {
		return fp.FragmentPath()
	}
	return ""
}

var errSkip = errors.New("skip transport")

func fallback[T any](ctx context.Context, f *FallbackTransport, call func(Transport) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	for _, t := range f.transports {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := call(t)
		if errors.Is(err, errSkip) {
			continue
		}
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !f.config.ShouldFallback(err) {
			return zero, err
		}
	}
	if lastErr == nil {
		return zero, errSkip
	}
	return zero, fmt.Errorf("all transports failed: %w", lastErr)
}

var (
	_ Transport      = (*FallbackTransport)(nil)
	_ Invoker        = (*FallbackTransport)(nil)
	_ FragmentPather = (*FallbackTransport)(nil)
)
