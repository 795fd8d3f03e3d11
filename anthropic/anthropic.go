// Package anthropic implements an invoke.Transport on top of the Anthropic Messages API.
//
// The same transport serves Claude on Amazon Bedrock when the underlying client is built
// with the SDK's bedrock option:
//
//	client := a.NewClient(bedrock.WithLoadDefaultConfig(ctx))
//	t := anthropic.New(&client.Messages)
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	a "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/spachava753/invoke"
	"github.com/spachava753/invoke/prompt"
)

const (
	// FragmentPath locates the text of a content_block_delta event.
	FragmentPath = "delta.text"
	// MessagePath locates the first text block of a complete Message.
	MessagePath = "content.0.text"

	guardrailIDHeader      = "X-Amzn-Bedrock-GuardrailIdentifier"
	guardrailVersionHeader = "X-Amzn-Bedrock-GuardrailVersion"
)

// Service is the subset of the SDK's MessageService the transport needs.
// *a.MessageService implements it.
type Service interface {
	New(ctx context.Context, body a.MessageNewParams, opts ...option.RequestOption) (*a.Message, error)
	NewStreaming(ctx context.Context, body a.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[a.MessageStreamEventUnion]
}

// Transport streams Messages API responses as invoke events. Text deltas become Chunk
// events holding the raw event JSON; every other stream event is Unrecognized.
type Transport struct {
	svc Service
}

// New creates a Transport using svc.
func New(svc Service) *Transport {
	return &Transport{svc: svc}
}

// FragmentPath implements invoke.FragmentPather.
func (t *Transport) FragmentPath() string { return FragmentPath }

// OpenStream implements invoke.Transport. The request body is read with prompt.Parse; a body
// it cannot read fails as a *invoke.TransportErr wrapping the *invoke.InvalidRequestErr.
func (t *Transport) OpenStream(ctx context.Context, req invoke.Request) (invoke.Source, error) {
	params, err := newParams(req)
	if err != nil {
		return nil, err
	}
	stream := t.svc.NewStreaming(ctx, params, requestOptions(req)...)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, transportErr("open stream", err)
	}
	return &source{stream: stream}, nil
}

// Invoke implements invoke.Invoker.
func (t *Transport) Invoke(ctx context.Context, req invoke.Request) (invoke.Response, error) {
	params, err := newParams(req)
	if err != nil {
		return invoke.Response{}, err
	}
	msg, err := t.svc.New(ctx, params, requestOptions(req)...)
	if err != nil {
		return invoke.Response{}, transportErr("invoke", err)
	}
	body := []byte(msg.RawJSON())
	if len(body) == 0 {
		if body, err = json.Marshal(msg); err != nil {
			return invoke.Response{}, &invoke.DecodeErr{Err: err}
		}
	}
	return invoke.Response{Body: body, FragmentPath: MessagePath}, nil
}

func newParams(req invoke.Request) (a.MessageNewParams, error) {
	body, err := prompt.Parse(req.Body)
	if err != nil {
		return a.MessageNewParams{}, &invoke.TransportErr{Op: "encode request", Err: err}
	}
	params := a.MessageNewParams{
		Model:     a.Model(req.ModelID),
		MaxTokens: body.Tokens(),
		Messages: []a.MessageParam{
			{
				Content: []a.ContentBlockParamUnion{a.NewTextBlock(body.Text())},
				Role:    a.MessageParamRoleUser,
			},
		},
	}
	if body.System != "" {
		params.System = []a.TextBlockParam{{Text: body.System}}
	}
	if body.Temperature != nil {
		params.Temperature = a.Float(*body.Temperature)
	}
	if len(body.StopSequences) > 0 {
		params.StopSequences = body.StopSequences
	}
	return params, nil
}

func requestOptions(req invoke.Request) []option.RequestOption {
	if req.Guardrail == nil {
		return nil
	}
	opts := []option.RequestOption{option.WithHeader(guardrailIDHeader, req.Guardrail.ID)}
	if req.Guardrail.Version != "" {
		opts = append(opts, option.WithHeader(guardrailVersionHeader, req.Guardrail.Version))
	}
	return opts
}

// transportErr keeps the HTTP status of SDK errors.
func transportErr(op string, err error) error {
	te := &invoke.TransportErr{Op: op, Err: err}
	var apierr *a.Error
	if errors.As(err, &apierr) {
		te.StatusCode = apierr.StatusCode
	}
	return te
}

type source struct {
	stream *ssestream.Stream[a.MessageStreamEventUnion]
	cur    invoke.Event
}

func (s *source) Next() bool {
	if !s.stream.Next() {
		return false
	}
	chunk := s.stream.Current()
	s.cur = invoke.UnrecognizedEvent(chunk.Type)
	if event, ok := chunk.AsAny().(a.ContentBlockDeltaEvent); ok {
		if _, ok := event.Delta.AsAny().(a.TextDelta); ok {
			s.cur = invoke.ChunkEvent([]byte(chunk.RawJSON()))
		}
	}
	return true
}

func (s *source) Current() invoke.Event { return s.cur }

func (s *source) Err() error {
	if err := s.stream.Err(); err != nil {
		return transportErr("receive", err)
	}
	return nil
}

func (s *source) Close() error { return s.stream.Close() }

var (
	_ invoke.Transport      = (*Transport)(nil)
	_ invoke.Invoker        = (*Transport)(nil)
	_ invoke.FragmentPather = (*Transport)(nil)
	_ Service               = (*a.MessageService)(nil)
)
