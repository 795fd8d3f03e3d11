package invoke

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// DefaultFragmentPath is the field holding the completion fragment in a chunk record
// when neither the client nor the transport says otherwise.
const DefaultFragmentPath = "completion"

// sink receives what the Dispatcher extracted. A Session is the only implementation.
type sink interface {
	// appendFragment adds a fragment to the output and reports whether it was accepted.
	// It is rejected once the outcome has been resolved.
	appendFragment(fragment string) bool
	noteUnrecognized() bool
	fail(err error)
}

// Dispatcher routes each Event to the handler for its kind.
// It holds no session state: results are reported to the sink it is given.
type Dispatcher struct {
	fragmentPath string
	onChunk      func(string)
	onDefault    func(Event)
	logger       *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithFragmentPath sets the gjson path of the completion fragment inside chunk records.
func WithFragmentPath(path string) DispatcherOption {
	return func(d *Dispatcher) {
		d.fragmentPath = path
	}
}

// WithChunkHandler registers a callback invoked with every fragment right after it has
// been appended to the output, e.g. to print text as it arrives.
// The callback runs on the delivery goroutine and must not block for long.
func WithChunkHandler(fn func(fragment string)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onChunk = fn
	}
}

// WithDefaultHandler registers a callback for Unrecognized events.
// Without one, such events are logged at debug level.
func WithDefaultHandler(fn func(Event)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onDefault = fn
	}
}

// NewDispatcher builds a Dispatcher. A nil logger disables logging.
func NewDispatcher(logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		fragmentPath: DefaultFragmentPath,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// dispatch handles one event and reports whether the stream should keep going.
func (d *Dispatcher) dispatch(ev Event, s sink) bool {
	switch ev.Kind() {
	case Chunk:
		fragment, err := ExtractFragment(ev.payload, d.fragmentPath)
		if err != nil {
			s.fail(err)
			return false
		}
		if !s.appendFragment(fragment) {
			return false
		}
		if d.onChunk != nil {
			d.onChunk(fragment)
		}
		return true
	default:
		if !s.noteUnrecognized() {
			return false
		}
		if d.onDefault != nil {
			d.onDefault(ev)
		} else {
			d.logger.Debug("ignoring unrecognized stream event", zap.String("event", ev.Raw()))
		}
		return true
	}
}

// ExtractFragment decodes payload as a UTF-8 JSON record and returns the string found at
// the gjson path. Any failure is returned as a *DecodeErr.
func ExtractFragment(payload []byte, path string) (string, error) {
	if !utf8.Valid(payload) {
		return "", decodeErr(payload, errors.New("payload is not valid UTF-8"))
	}
	if !gjson.ValidBytes(payload) {
		return "", decodeErr(payload, errors.New("payload is not a valid JSON record"))
	}
	field := gjson.GetBytes(payload, path)
	if !field.Exists() {
		return "", decodeErr(payload, fmt.Errorf("field %q not found", path))
	}
	if field.Type != gjson.String {
		return "", decodeErr(payload, fmt.Errorf("field %q is %s, not a string", path, field.Type))
	}
	return field.Str, nil
}

// decodeErr keeps its own copy of payload so the error outlives the event it came from.
func decodeErr(payload []byte, err error) *DecodeErr {
	return &DecodeErr{Payload: bytes.Clone(payload), Err: err}
}
