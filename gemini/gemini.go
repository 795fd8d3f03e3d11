// Package gemini implements an invoke.Transport on top of the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"math"

	"github.com/tidwall/gjson"
	"google.golang.org/genai"

	"github.com/spachava753/invoke"
	"github.com/spachava753/invoke/prompt"
)

// FragmentPath locates the text of the first part of the first candidate, both in
// streamed and in complete responses.
const FragmentPath = "candidates.0.content.parts.0.text"

// ModelsService is the subset of the SDK's Models service the transport needs.
type ModelsService interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Transport streams Gemini responses as invoke events. Responses carrying candidate text
// become Chunk events holding the response JSON; the rest are Unrecognized.
// Guardrail references are not supported by the API and are ignored.
type Transport struct {
	models ModelsService
}

// New creates a Transport, typically with client.Models.
func New(models ModelsService) *Transport {
	return &Transport{models: models}
}

// FragmentPath implements invoke.FragmentPather.
func (t *Transport) FragmentPath() string { return FragmentPath }

// OpenStream implements invoke.Transport. The first response is read before returning
// so that a rejected request fails here with its HTTP status. A body prompt.Parse rejects
// fails as a *invoke.TransportErr wrapping the *invoke.InvalidRequestErr.
func (t *Transport) OpenStream(ctx context.Context, req invoke.Request) (invoke.Source, error) {
	contents, config, err := newContents(req)
	if err != nil {
		return nil, err
	}
	next, stop := iter.Pull2(t.models.GenerateContentStream(ctx, req.ModelID, contents, config))

	resp, err, ok := next()
	if err != nil {
		stop()
		return nil, transportErr("open stream", err)
	}
	return &source{next: next, stop: stop, first: resp, hasFirst: ok}, nil
}

// Invoke implements invoke.Invoker.
func (t *Transport) Invoke(ctx context.Context, req invoke.Request) (invoke.Response, error) {
	contents, config, err := newContents(req)
	if err != nil {
		return invoke.Response{}, err
	}
	resp, err := t.models.GenerateContent(ctx, req.ModelID, contents, config)
	if err != nil {
		return invoke.Response{}, transportErr("invoke", err)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return invoke.Response{}, &invoke.DecodeErr{Err: err}
	}
	return invoke.Response{Body: body, FragmentPath: FragmentPath}, nil
}

func newContents(req invoke.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	body, err := prompt.Parse(req.Body)
	if err != nil {
		return nil, nil, &invoke.TransportErr{Op: "encode request", Err: err}
	}
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: maxOutputTokens(body.Tokens()),
		StopSequences:   body.StopSequences,
	}
	if body.System != "" {
		config.SystemInstruction = genai.NewContentFromText(body.System, genai.RoleUser)
	}
	if body.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*body.Temperature))
	}
	return genai.Text(body.Text()), config, nil
}

// maxOutputTokens clamps n to the int32 range the API accepts.
func maxOutputTokens(n int64) int32 {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(n)
}

func transportErr(op string, err error) error {
	te := &invoke.TransportErr{Op: op, Err: err}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		te.StatusCode = apiErr.Code
	}
	return te
}

type source struct {
	next     func() (*genai.GenerateContentResponse, error, bool)
	stop     func()
	first    *genai.GenerateContentResponse
	hasFirst bool
	cur      invoke.Event
	err      error
}

func (s *source) Next() bool {
	if s.err != nil {
		return false
	}
	var resp *genai.GenerateContentResponse
	if s.hasFirst {
		resp, s.hasFirst, s.first = s.first, false, nil
	} else {
		var err error
		var ok bool
		resp, err, ok = s.next()
		if err != nil {
			s.err = transportErr("receive", err)
			return false
		}
		if !ok {
			return false
		}
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		s.err = &invoke.DecodeErr{Err: err}
		return false
	}
	if gjson.GetBytes(payload, FragmentPath).Type == gjson.String {
		s.cur = invoke.ChunkEvent(payload)
	} else {
		s.cur = invoke.UnrecognizedEvent(describe(payload))
	}
	return true
}

// describe names a response that carries no candidate text.
func describe(payload []byte) string {
	if fr := gjson.GetBytes(payload, "candidates.0.finishReason"); fr.Type == gjson.String && fr.Str != "" {
		return "finish_reason:" + fr.Str
	}
	if gjson.GetBytes(payload, "usageMetadata").IsObject() {
		return "usage"
	}
	return "response"
}

func (s *source) Current() invoke.Event { return s.cur }

func (s *source) Err() error { return s.err }

func (s *source) Close() error {
	s.stop()
	return nil
}

var (
	_ invoke.Transport      = (*Transport)(nil)
	_ invoke.Invoker        = (*Transport)(nil)
	_ invoke.FragmentPather = (*Transport)(nil)
	_ ModelsService         = (*genai.Models)(nil)
)
