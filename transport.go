package invoke

import "context"

// Transport opens streaming invocations against a remote inference service.
//
// OpenStream returns once the service has accepted the request. Errors returned from
// OpenStream resolve the Session as a failure; implementations should wrap network and
// service failures in *TransportErr so callers can classify them.
type Transport interface {
	OpenStream(ctx context.Context, req Request) (Source, error)
}

// Source yields the framed events of one open stream, in the order the service produced them.
//
// The usage pattern mirrors a scanner:
//
//	for src.Next() {
//	    ev := src.Current()
//	    ...
//	}
//	if err := src.Err(); err != nil { ... }
//
// Next must return false promptly once the context given to [Transport.OpenStream] is done.
// Close releases the underlying connection and is called exactly once by the Subscription.
type Source interface {
	Next() bool
	Current() Event
	// Err returns the error that stopped the stream, or nil on a clean end of stream
	Err() error
	Close() error
}

// Response is the whole body of a one-shot invocation.
type Response struct {
	Body []byte
	// FragmentPath is the gjson path of the completion text inside Body.
	// When empty the Client's fragment path is used.
	FragmentPath string
}

// Invoker is implemented by transports that also support one-shot, non-streaming invocation.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (Response, error)
}

// FragmentPather is implemented by transports whose chunk payloads keep the completion
// fragment somewhere other than the default "completion" field.
type FragmentPather interface {
	FragmentPath() string
}

// SliceSource returns a Source that replays events in order and then ends cleanly.
func SliceSource(events ...Event) Source {
	return &sliceSource{events: events, pos: -1}
}

type sliceSource struct {
	events []Event
	pos    int
	closed bool
}

func (s *sliceSource) Next() bool {
	if s.closed || s.pos+1 >= len(s.events) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource) Current() Event {
	if s.pos < 0 || s.pos >= len(s.events) {
		return Event{}
	}
	return s.events[s.pos]
}

func (s *sliceSource) Err() error { return nil }

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}
