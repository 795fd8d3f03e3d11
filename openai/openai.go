// Package openai implements an invoke.Transport on top of the OpenAI chat completions API
// and any service compatible with it.
package openai

import (
	"context"
	"errors"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	oaissestream "github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/tidwall/gjson"

	"github.com/spachava753/invoke"
	"github.com/spachava753/invoke/prompt"
)

const (
	// FragmentPath locates the content delta of a chat completion chunk.
	FragmentPath = "choices.0.delta.content"
	// MessagePath locates the content of a complete chat completion.
	MessagePath = "choices.0.message.content"
)

// CompletionService is the subset of the SDK's ChatCompletionService the transport needs.
type CompletionService interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) *oaissestream.Stream[oai.ChatCompletionChunk]
}

// Transport streams chat completion chunks as invoke events. Chunks carrying a content
// delta become Chunk events; role-only, finish and usage chunks are Unrecognized.
// Guardrail references are not supported by the API and are ignored.
type Transport struct {
	svc  CompletionService
	opts []option.RequestOption
}

// Option configures a Transport.
type Option func(*Transport)

// WithRequestOptions adds SDK request options to every call, e.g. extra headers.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(t *Transport) {
		t.opts = append(t.opts, opts...)
	}
}

// New creates a Transport using svc, typically &client.Chat.Completions.
func New(svc CompletionService, opts ...Option) *Transport {
	t := &Transport{svc: svc}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FragmentPath implements invoke.FragmentPather.
func (t *Transport) FragmentPath() string { return FragmentPath }

// OpenStream implements invoke.Transport. A body prompt.Parse rejects fails as a
// *invoke.TransportErr wrapping the *invoke.InvalidRequestErr.
func (t *Transport) OpenStream(ctx context.Context, req invoke.Request) (invoke.Source, error) {
	params, err := newParams(req)
	if err != nil {
		return nil, err
	}
	stream := t.svc.NewStreaming(ctx, params, t.opts...)
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
	resp, err := t.svc.New(ctx, params, t.opts...)
	if err != nil {
		return invoke.Response{}, transportErr("invoke", err)
	}
	return invoke.Response{Body: []byte(resp.RawJSON()), FragmentPath: MessagePath}, nil
}

func newParams(req invoke.Request) (oai.ChatCompletionNewParams, error) {
	body, err := prompt.Parse(req.Body)
	if err != nil {
		return oai.ChatCompletionNewParams{}, &invoke.TransportErr{Op: "encode request", Err: err}
	}
	var messages []oai.ChatCompletionMessageParamUnion
	if body.System != "" {
		messages = append(messages, oai.SystemMessage(body.System))
	}
	messages = append(messages, oai.UserMessage(body.Text()))

	params := oai.ChatCompletionNewParams{
		Model:               oai.ChatModel(req.ModelID),
		Messages:            messages,
		MaxCompletionTokens: oai.Int(body.Tokens()),
	}
	if body.Temperature != nil {
		params.Temperature = oai.Float(*body.Temperature)
	}
	switch len(body.StopSequences) {
	case 0:
	case 1:
		params.Stop = oai.ChatCompletionNewParamsStopUnion{OfString: oai.String(body.StopSequences[0])}
	default:
		params.Stop = oai.ChatCompletionNewParamsStopUnion{OfStringArray: body.StopSequences}
	}
	return params, nil
}

func transportErr(op string, err error) error {
	te := &invoke.TransportErr{Op: op, Err: err}
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		te.StatusCode = apierr.StatusCode
	}
	return te
}

type source struct {
	stream *oaissestream.Stream[oai.ChatCompletionChunk]
	cur    invoke.Event
}

func (s *source) Next() bool {
	if !s.stream.Next() {
		return false
	}
	raw := s.stream.Current().RawJSON()
	if gjson.Get(raw, FragmentPath).Type == gjson.String {
		s.cur = invoke.ChunkEvent([]byte(raw))
		return true
	}
	s.cur = invoke.UnrecognizedEvent(describe(raw))
	return true
}

// describe names a chunk that carries no content delta.
func describe(raw string) string {
	if fr := gjson.Get(raw, "choices.0.finish_reason"); fr.Type == gjson.String {
		return "finish_reason:" + fr.Str
	}
	if gjson.Get(raw, "usage").IsObject() {
		return "usage"
	}
	if r := gjson.Get(raw, "choices.0.delta.role"); r.Exists() {
		return "role:" + r.String()
	}
	return "chat.completion.chunk"
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
	_ CompletionService     = (*oai.ChatCompletionService)(nil)
)
