package invoke

import "bytes"

// EventKind tags the variant held by an Event.
type EventKind int

const (
	// Chunk events carry a payload with one completion fragment.
	Chunk EventKind = iota
	// Unrecognized events are anything else the transport delivered on the stream.
	Unrecognized
)

func (k EventKind) String() string {
	switch k {
	case Chunk:
		return "chunk"
	case Unrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Event is one framed unit delivered on a stream. It is immutable once constructed.
type Event struct {
	kind    EventKind
	payload []byte
	raw     string
}

// ChunkEvent returns a Chunk event holding a copy of payload.
func ChunkEvent(payload []byte) Event {
	return Event{kind: Chunk, payload: bytes.Clone(payload)}
}

// UnrecognizedEvent returns an Unrecognized event with a raw description of what was received.
func UnrecognizedEvent(raw string) Event {
	return Event{kind: Unrecognized, raw: raw}
}

func (e Event) Kind() EventKind { return e.kind }

// Payload returns a copy of the chunk payload, or nil for Unrecognized events.
func (e Event) Payload() []byte { return bytes.Clone(e.payload) }

func (e Event) Raw() string { return e.raw }

func (e Event) String() string {
	if e.kind == Chunk {
		return "chunk(" + string(e.payload) + ")"
	}
	return "unrecognized(" + e.raw + ")"
}
