package invoke

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Session.
type State int

const (
	Created State = iota
	Submitted
	Streaming
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Submitted:
		return "submitted"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Session owns one streaming request from submission to its terminal Outcome.
//
// Events are delivered by a single goroutine per Session, in arrival order. Exactly one
// Outcome is produced: the first terminal signal wins, and later ones are ignored.
type Session struct {
	id       string
	model    string
	started  time.Time
	logger   *zap.Logger
	observer Observer
	sub      *Subscription
	cell     *outcomeCell

	mu           sync.Mutex
	state        State
	buf          strings.Builder
	chunks       int
	unrecognized int
	stopErr      error
}

func newSession(model string, logger *zap.Logger, observer Observer) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		model:    model,
		started:  time.Now(),
		logger:   logger.With(zap.String("session_id", id), zap.String("model", model)),
		observer: observer,
		cell:     newOutcomeCell(),
		state:    Created,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Model() string { return s.model }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the Outcome has been resolved.
func (s *Session) Done() <-chan struct{} {
	return s.cell.done
}

// Wait blocks until the Outcome is resolved or ctx ends. Giving up on the wait does not
// cancel the Session; use Cancel for that.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	return s.cell.wait(ctx)
}

// Cancel aborts the Session. See [Subscription.Cancel].
func (s *Session) Cancel() {
	s.sub.Cancel()
}

// Subscription returns the live channel owned by the Session.
func (s *Session) Subscription() *Subscription {
	return s.sub
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Terminal() {
		s.state = to
	}
}

func (s *Session) streaming() {
	s.transition(Streaming)
	s.logger.Debug("stream opened")
}

func (s *Session) appendFragment(fragment string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || s.stopErr != nil {
		return false
	}
	s.buf.WriteString(fragment)
	s.chunks++
	return true
}

func (s *Session) noteUnrecognized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || s.stopErr != nil {
		return false
	}
	s.unrecognized++
	return true
}

// fail records the cause that will resolve the Session once its stream is released.
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopErr == nil {
		s.stopErr = err
	}
}

func (s *Session) pendingErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopErr
}

// onComplete resolves the Session as a success. It is a no-op once resolved.
func (s *Session) onComplete() {
	s.resolve(nil)
}

// onError resolves the Session as a failure. It is a no-op once resolved.
func (s *Session) onError(cause error) {
	s.resolve(cause)
}

func (s *Session) resolve(cause error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	metrics := Metrics{
		MetricChunks:             s.chunks,
		MetricUnrecognizedEvents: s.unrecognized,
		MetricOutputBytes:        s.buf.Len(),
		MetricElapsed:            time.Since(s.started),
	}
	o := Outcome{Err: cause, Metrics: metrics}
	if cause == nil {
		o.Text = s.buf.String()
		s.state = Completed
	} else {
		s.state = Failed
	}
	s.mu.Unlock()

	if cause != nil {
		s.logger.Info("session failed", zap.Error(cause), zap.Int("chunks", o.Metrics[MetricChunks].(int)))
	} else {
		s.logger.Debug("session completed", zap.Int("chunks", o.Metrics[MetricChunks].(int)))
	}
	// observers see the outcome before any waiter is released
	s.observer.ObserveOutcome(s.model, o)
	s.cell.resolve(o)
}
