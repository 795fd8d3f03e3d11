// Package prompt builds and reads the JSON request body shared by the provider transports.
//
// The body follows the text-completion shape used by Claude models on Bedrock:
//
//	{"prompt": "\n\nHuman: hi\n\nAssistant:", "max_tokens_to_sample": 1024, "temperature": 0.8}
//
// Chat style transports (anthropic, openai, gemini) read the same body and strip the
// Human/Assistant framing before sending the text as a user message.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/spachava753/invoke"
)

const (
	humanTurn     = "\n\nHuman: "
	assistantTurn = "\n\nAssistant:"

	// DefaultMaxTokens is used by transports when a body does not set a token limit.
	DefaultMaxTokens = 1024
)

// Body is the decoded request body.
type Body struct {
	Prompt        string   `json:"prompt"`
	System        string   `json:"system,omitempty"`
	MaxTokens     int64    `json:"max_tokens_to_sample,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// Claude wraps text in the Human/Assistant turn markers text-completion models expect.
func Claude(text string) string {
	return humanTurn + text + assistantTurn
}

// New returns a Body for text framed with [Claude].
func New(text string) Body {
	return Body{Prompt: Claude(text), MaxTokens: DefaultMaxTokens}
}

// WithTemperature returns a copy of b with the sampling temperature set.
func (b Body) WithTemperature(t float64) Body {
	b.Temperature = &t
	return b
}

// Encode serializes b for use as invoke.Request.Body.
func (b Body) Encode() []byte {
	data, err := json.Marshal(b)
	if err != nil {
		// every field of Body is marshalable
		panic(fmt.Sprintf("prompt: marshal body: %v", err))
	}
	return data
}

// Text returns the prompt without Human/Assistant framing.
func (b Body) Text() string {
	t := strings.TrimSpace(b.Prompt)
	t = strings.TrimPrefix(t, "Human:")
	t = strings.TrimSuffix(t, "Assistant:")
	return strings.TrimSpace(t)
}

// Tokens returns MaxTokens, or DefaultMaxTokens when unset.
func (b Body) Tokens() int64 {
	if b.MaxTokens > 0 {
		return b.MaxTokens
	}
	return DefaultMaxTokens
}

// Parse decodes a request body. "max_tokens" is accepted as an alias of
// "max_tokens_to_sample". A body that is not a JSON record with a string "prompt" field
// yields an *invoke.InvalidRequestErr.
func Parse(data []byte) (Body, error) {
	if !gjson.ValidBytes(data) {
		return Body{}, &invoke.InvalidRequestErr{Field: "Body", Reason: "not a valid JSON record"}
	}
	rec := gjson.ParseBytes(data)
	p := rec.Get("prompt")
	if p.Type != gjson.String || p.Str == "" {
		return Body{}, &invoke.InvalidRequestErr{Field: "Body", Reason: `missing string field "prompt"`}
	}

	b := Body{
		Prompt: p.Str,
		System: rec.Get("system").String(),
	}
	if mt := rec.Get("max_tokens_to_sample"); mt.Exists() {
		b.MaxTokens = mt.Int()
	} else if mt := rec.Get("max_tokens"); mt.Exists() {
		b.MaxTokens = mt.Int()
	}
	if t := rec.Get("temperature"); t.Type == gjson.Number {
		v := t.Float()
		b.Temperature = &v
	}
	for _, s := range rec.Get("stop_sequences").Array() {
		b.StopSequences = append(b.StopSequences, s.String())
	}
	return b, nil
}
