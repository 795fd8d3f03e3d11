package sse

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/tidwall/gjson"

	"github.com/spachava753/invoke"
)

// Source adapts an SSE decoder to invoke.Source.
type Source struct {
	dec ssestream.Decoder
	cur invoke.Event
	err error
}

func newSource(resp *http.Response) *Source {
	return &Source{dec: ssestream.NewDecoder(resp)}
}

// NewFileSource replays a recorded SSE stream from path, e.g. one captured with
// curl --no-buffer. The file is closed by Close.
func NewFileSource(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/event-stream"}},
		Body:       f,
	}
	return newSource(resp), nil
}

func (s *Source) Next() bool {
	if s.err != nil || s.dec == nil {
		return false
	}
	for s.dec.Next() {
		ev := s.dec.Event()
		data := bytes.TrimSpace(ev.Data)
		switch ev.Type {
		case EventChunk:
			s.cur = invoke.ChunkEvent(data)
			return true
		case EventError:
			s.err = streamErr(data)
			return false
		case "":
			// a blank dispatch with neither type nor data is a keep-alive
			if len(data) == 0 {
				continue
			}
			s.cur = invoke.UnrecognizedEvent("message")
			return true
		default:
			s.cur = invoke.UnrecognizedEvent(ev.Type)
			return true
		}
	}
	if err := s.dec.Err(); err != nil {
		s.err = &invoke.TransportErr{Op: "receive", Err: err}
	}
	return false
}

func (s *Source) Current() invoke.Event { return s.cur }

func (s *Source) Err() error { return s.err }

func (s *Source) Close() error {
	if s.dec == nil {
		return nil
	}
	return s.dec.Close()
}

// streamErr decodes the data of an "error" event. The gateway sends
// {"message": "...", "status": 503}; anything else is kept verbatim.
func streamErr(data []byte) error {
	te := &invoke.TransportErr{Op: "receive"}
	if !gjson.ValidBytes(data) {
		te.Err = fmt.Errorf("stream error: %s", data)
		return te
	}
	rec := gjson.ParseBytes(data)
	te.StatusCode = int(rec.Get("status").Int())
	if msg := rec.Get("message"); msg.Type == gjson.String && msg.Str != "" {
		te.Err = errors.New(msg.Str)
	} else {
		te.Err = fmt.Errorf("stream error: %s", data)
	}
	return te
}

var _ invoke.Source = (*Source)(nil)
