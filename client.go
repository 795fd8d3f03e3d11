package invoke

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Observer is notified once per resolved Session or Future.
type Observer interface {
	ObserveOutcome(model string, outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) ObserveOutcome(string, Outcome) {}

// Client submits invocations to a Transport.
type Client struct {
	transport      Transport
	logger         *zap.Logger
	observer       Observer
	dispatcherOpts []DispatcherOption
}

// ClientOption is a functional option for configuring a Client.
type ClientOption func(*Client)

// WithLogger sets the logger used by the Client and its Sessions. The default discards everything.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers an Observer notified of every Outcome.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithDispatcherOptions applies opts to the Dispatcher of every Session of the Client.
// Options passed to Submit are applied after these.
func WithDispatcherOptions(opts ...DispatcherOption) ClientOption {
	return func(c *Client) {
		c.dispatcherOpts = append(c.dispatcherOpts, opts...)
	}
}

// NewClient creates a Client sending requests through t.
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		logger:    zap.NewNop(),
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit validates req and starts streaming it in the background.
//
// An invalid request fails synchronously with *InvalidRequestErr. Any later failure,
// including a failure to open the stream, is reported through the Session's Outcome.
// Ending ctx cancels the Session. opts apply to this Session's Dispatcher only, e.g.
//
//	sess, err := client.Submit(ctx, req, invoke.WithChunkHandler(func(s string) {
//	    fmt.Print(s)
//	}))
func (c *Client) Submit(ctx context.Context, req Request, opts ...DispatcherOption) (*Session, error) {
	if c.transport == nil {
		return nil, fmt.Errorf("invoke: transport not initialized")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.clone()

	s := newSession(req.ModelID, c.logger, c.observer)
	s.sub = newSubscription(ctx)
	d := c.dispatcher(opts...)
	s.transition(Submitted)
	s.logger.Debug("request submitted")

	go s.sub.run(c.transport, req, d, s)
	return s, nil
}

func (c *Client) dispatcher(opts ...DispatcherOption) *Dispatcher {
	all := make([]DispatcherOption, 0, 1+len(c.dispatcherOpts)+len(opts))
	if fp, ok := c.transport.(FragmentPather); ok && fp.FragmentPath() != "" {
		all = append(all, WithFragmentPath(fp.FragmentPath()))
	}
	all = append(all, c.dispatcherOpts...)
	all = append(all, opts...)
	return NewDispatcher(c.logger, all...)
}
