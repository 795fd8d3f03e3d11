package invoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Generate performs a one-shot invocation and returns the completion text.
// The Transport must implement [Invoker]; otherwise ErrNotInvoker is returned.
//
// The completion is read from the response body at Response.FragmentPath, or at the
// client's fragment path when the transport leaves it empty.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	inv, ok := c.transport.(Invoker)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrNotInvoker, c.transport)
	}

	resp, err := inv.Invoke(ctx, req.clone())
	if errors.Is(err, ErrNotInvoker) {
		return "", err
	}
	if err != nil {
		return "", asTransportErr("invoke", err)
	}
	path := resp.FragmentPath
	if path == "" {
		path = c.dispatcher().fragmentPath
	}
	return ExtractFragment(resp.Body, path)
}

// Future is the pending result of [Client.GenerateAsync].
type Future struct {
	cell *outcomeCell
}

// Done is closed once the Outcome is available.
func (f *Future) Done() <-chan struct{} {
	return f.cell.done
}

// Wait blocks until the Outcome is available or ctx ends.
func (f *Future) Wait(ctx context.Context) (Outcome, error) {
	return f.cell.wait(ctx)
}

// GenerateAsync runs Generate in the background and returns immediately.
// An invalid request resolves the Future at once.
func (c *Client) GenerateAsync(ctx context.Context, req Request) *Future {
	f := &Future{cell: newOutcomeCell()}
	if err := req.Validate(); err != nil {
		f.cell.resolve(Outcome{Err: err})
		return f
	}
	req = req.clone()
	go func() {
		started := time.Now()
		text, err := c.Generate(ctx, req)
		o := Outcome{Err: err, Metrics: Metrics{MetricElapsed: time.Since(started), MetricOutputBytes: len(text)}}
		if err == nil {
			o.Text = text
		} else {
			c.logger.Info("async invocation failed", zap.String("model", req.ModelID), zap.Error(err))
		}
		c.observer.ObserveOutcome(req.ModelID, o)
		f.cell.resolve(o)
	}()
	return f
}
