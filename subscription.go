package invoke

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// Subscription is the live channel between a Transport stream and one Session.
// It is created by [Client.Submit] and owned by the Session for its whole lifetime.
type Subscription struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	released chan struct{}
	// delivering is set while the pump goroutine runs caller code: handlers and observers
	delivering atomic.Bool
}

func newSubscription(parent context.Context) *Subscription {
	ctx, cancel := context.WithCancelCause(parent)
	return &Subscription{
		ctx:      ctx,
		cancel:   cancel,
		released: make(chan struct{}),
	}
}

// Cancel aborts the stream and blocks until its Source has been closed and the Session
// resolved. A Session cancelled before it resolved fails with ErrCancelled.
// Calling Cancel after resolution, or more than once, does nothing.
//
// Handlers and Observers run on the goroutine that releases the stream, so Cancel does not
// wait while one of them is running: called from a handler it returns at once, and no
// further event is dispatched. Use Released or the Session's Done to wait in that case.
func (sub *Subscription) Cancel() {
	sub.cancel(ErrCancelled)
	if sub.delivering.Load() {
		return
	}
	<-sub.released
}

// deliver runs fn, which may call back into caller code, on the pump goroutine.
func (sub *Subscription) deliver(fn func()) {
	sub.delivering.Store(true)
	defer sub.delivering.Store(false)
	fn()
}

// Released is closed once the stream's Source has been closed.
func (sub *Subscription) Released() <-chan struct{} {
	return sub.released
}

// run opens the stream and pumps its events into d until the stream ends, fails, or is
// cancelled. The Source is closed before s is resolved.
func (sub *Subscription) run(t Transport, req Request, d *Dispatcher, s *Session) {
	defer close(sub.released)

	src, err := t.OpenStream(sub.ctx, req)
	if err != nil {
		cause := sub.cancelCause()
		if cause == nil {
			cause = asTransportErr("open stream", err)
		}
		sub.cancel(nil)
		sub.deliver(func() { s.onError(cause) })
		return
	}
	s.streaming()

	stopped := false
	for src.Next() {
		if sub.ctx.Err() != nil {
			break
		}
		keepGoing := true
		ev := src.Current()
		sub.deliver(func() { keepGoing = d.dispatch(ev, s) })
		if !keepGoing {
			stopped = true
			break
		}
	}

	var streamErr error
	if !stopped {
		streamErr = src.Err()
	}
	if closeErr := src.Close(); closeErr != nil {
		s.logger.Debug("closing stream source failed", zap.Error(closeErr))
	}

	cause := s.pendingErr()
	if cause == nil {
		cause = sub.cancelCause()
	}
	if cause == nil && streamErr != nil {
		cause = asTransportErr("receive", streamErr)
	}
	sub.cancel(nil)

	if cause != nil {
		sub.deliver(func() { s.onError(cause) })
		return
	}
	sub.deliver(s.onComplete)
}

// cancelCause returns the cancellation cause if the subscription context has ended.
func (sub *Subscription) cancelCause() error {
	if sub.ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(sub.ctx)
	if errors.Is(cause, ErrCancelled) {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// asTransportErr wraps err in a *TransportErr unless it already carries one of the
// package's typed causes.
func asTransportErr(op string, err error) error {
	var (
		te  *TransportErr
		ire *InvalidRequestErr
		de  *DecodeErr
	)
	if errors.As(err, &te) || errors.As(err, &ire) || errors.As(err, &de) {
		return err
	}
	return &TransportErr{Op: op, Err: err}
}
