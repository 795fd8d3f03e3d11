// Package sse implements an invoke.Transport for inference gateways that answer with a
// Server-Sent Events stream.
//
// A streaming request is a POST to {base}/model/{model}/invoke-with-response-stream. Each
// SSE event of type "chunk" carries one JSON record in its data field; an event of type
// "error" ends the stream with a failure, and any other event is passed on as
// Unrecognized. One-shot requests are sent to {base}/model/{model}/invoke.
package sse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/spachava753/invoke"
)

const (
	// GuardrailIDHeader carries GuardrailRef.ID.
	GuardrailIDHeader = "X-Amzn-Bedrock-GuardrailIdentifier"
	// GuardrailVersionHeader carries GuardrailRef.Version.
	GuardrailVersionHeader = "X-Amzn-Bedrock-GuardrailVersion"

	EventChunk = "chunk"
	EventError = "error"

	streamSuffix = "invoke-with-response-stream"
	invokeSuffix = "invoke"

	// maxErrorBody bounds how much of a failed response is kept in the error message.
	maxErrorBody = 4 << 10
)

// Transport talks to an SSE inference gateway. It is safe for concurrent use.
type Transport struct {
	baseURL      string
	client       *http.Client
	headers      map[string]string
	fragmentPath string
}

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient sets the HTTP client. The default has no overall timeout, since a stream
// may legitimately stay open for minutes; bound it with the request context instead.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithHeader adds a header sent with every request, e.g. an authorization token.
func WithHeader(key, value string) Option {
	return func(t *Transport) {
		t.headers[key] = value
	}
}

// WithFragmentPath sets where the completion fragment lives in chunk records, for
// models whose records do not use the "completion" field.
func WithFragmentPath(path string) Option {
	return func(t *Transport) {
		t.fragmentPath = path
	}
}

// New creates a Transport for the gateway at baseURL.
func New(baseURL string, opts ...Option) *Transport {
	t := &Transport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 60 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// FragmentPath implements invoke.FragmentPather.
func (t *Transport) FragmentPath() string {
	return t.fragmentPath
}

// OpenStream implements invoke.Transport.
func (t *Transport) OpenStream(ctx context.Context, req invoke.Request) (invoke.Source, error) {
	hreq, err := t.newRequest(ctx, req, streamSuffix)
	if err != nil {
		return nil, &invoke.TransportErr{Op: "open stream", Err: err}
	}
	hreq.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(hreq)
	if err != nil {
		return nil, &invoke.TransportErr{Op: "open stream", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusErr("open stream", resp)
	}
	return newSource(resp), nil
}

// Invoke implements invoke.Invoker.
func (t *Transport) Invoke(ctx context.Context, req invoke.Request) (invoke.Response, error) {
	hreq, err := t.newRequest(ctx, req, invokeSuffix)
	if err != nil {
		return invoke.Response{}, &invoke.TransportErr{Op: "invoke", Err: err}
	}
	hreq.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(hreq)
	if err != nil {
		return invoke.Response{}, &invoke.TransportErr{Op: "invoke", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return invoke.Response{}, statusErr("invoke", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return invoke.Response{}, &invoke.TransportErr{Op: "invoke", StatusCode: resp.StatusCode, Err: err}
	}
	return invoke.Response{Body: body, FragmentPath: t.fragmentPath}, nil
}

func (t *Transport) newRequest(ctx context.Context, req invoke.Request, suffix string) (*http.Request, error) {
	endpoint := fmt.Sprintf("%s/model/%s/%s", t.baseURL, url.PathEscape(req.ModelID), suffix)
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		hreq.Header.Set(k, v)
	}
	if req.Guardrail != nil {
		hreq.Header.Set(GuardrailIDHeader, req.Guardrail.ID)
		if req.Guardrail.Version != "" {
			hreq.Header.Set(GuardrailVersionHeader, req.Guardrail.Version)
		}
	}
	return hreq, nil
}

// statusErr turns a non-2xx response into a *invoke.TransportErr, keeping the service's
// message when the body is a JSON record with a "message" field.
func statusErr(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if m := gjson.GetBytes(body, "message"); m.Type == gjson.String {
		msg = m.Str
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &invoke.TransportErr{Op: op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
}

var (
	_ invoke.Transport      = (*Transport)(nil)
	_ invoke.Invoker        = (*Transport)(nil)
	_ invoke.FragmentPather = (*Transport)(nil)
)
