package invoke

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TransportWrapper is a base type for middleware-style transport wrappers.
// Embed it in a wrapper struct to get delegation for OpenStream, Invoke and
// FragmentPath, then override only the methods that need custom behavior.
//
// When wrappers are stacked with [Wrap], calls flow through them like an onion:
//
//	t := Wrap(base, WithA(), WithB())
//
//	// A.OpenStream (before) →
//	//   B.OpenStream (before) →
//	//     base.OpenStream
//	//   B.OpenStream (after) ←
//	// A.OpenStream (after) ←
//
// If Inner does not implement [Invoker], Invoke returns ErrNotInvoker. If Inner does not
// implement [FragmentPather], FragmentPath returns an empty string, which leaves the
// client's own fragment path in effect.
type TransportWrapper struct {
	Inner Transport
}

// OpenStream delegates to Inner.OpenStream.
func (w *TransportWrapper) OpenStream(ctx context.Context, req Request) (Source, error) {
	return w.Inner.OpenStream(ctx, req)
}

// Invoke delegates to Inner.Invoke if Inner implements [Invoker].
func (w *TransportWrapper) Invoke(ctx context.Context, req Request) (Response, error) {
	if inv, ok := w.Inner.(Invoker); ok {
		return inv.Invoke(ctx, req)
	}
	return Response{}, fmt.Errorf("%w: %T", ErrNotInvoker, w.Inner)
}

// FragmentPath delegates to Inner.FragmentPath if Inner implements [FragmentPather].
func (w *TransportWrapper) FragmentPath() string {
	if fp, ok := w.Inner.(FragmentPather); ok {
		return fp.FragmentPath()
	}
	return ""
}

var (
	_ Transport      = (*TransportWrapper)(nil)
	_ Invoker        = (*TransportWrapper)(nil)
	_ FragmentPather = (*TransportWrapper)(nil)
)

// WrapperFunc wraps a Transport, returning a new Transport. Use with [Wrap].
type WrapperFunc func(Transport) Transport

// Wrap applies wrappers to t. The first wrapper becomes the outermost layer.
func Wrap(t Transport, wrappers ...WrapperFunc) Transport {
	for i := len(wrappers) - 1; i >= 0; i-- {
		t = wrappers[i](t)
	}
	return t
}

// LoggingTransport logs every stream open and one-shot invocation.
type LoggingTransport struct {
	TransportWrapper
	Logger *zap.Logger
}

func (l *LoggingTransport) OpenStream(ctx context.Context, req Request) (Source, error) {
	start := time.Now()
	src, err := l.TransportWrapper.OpenStream(ctx, req)
	fields := []zap.Field{zap.String("model", req.ModelID), zap.Duration("latency", time.Since(start))}
	if req.Guardrail != nil {
		fields = append(fields, zap.String("guardrail_id", req.Guardrail.ID), zap.String("guardrail_version", req.Guardrail.Version))
	}
	if err != nil {
		l.Logger.Warn("open stream failed", append(fields, zap.Error(err))...)
		return nil, err
	}
	l.Logger.Info("stream opened", fields...)
	return src, nil
}

func (l *LoggingTransport) Invoke(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := l.TransportWrapper.Invoke(ctx, req)
	fields := []zap.Field{zap.String("model", req.ModelID), zap.Duration("latency", time.Since(start))}
	if err != nil {
		l.Logger.Warn("invoke failed", append(fields, zap.Error(err))...)
		return resp, err
	}
	l.Logger.Info("invoke completed", append(fields, zap.Int("bytes", len(resp.Body)))...)
	return resp, nil
}

// WithLogging returns a WrapperFunc adding a LoggingTransport layer.
func WithLogging(logger *zap.Logger) WrapperFunc {
	return func(t Transport) Transport {
		if logger == nil {
			logger = zap.NewNop()
		}
		return &LoggingTransport{
			TransportWrapper: TransportWrapper{Inner: t},
			Logger:           logger,
		}
	}
}
