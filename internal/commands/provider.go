package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	a "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	aopt "github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	oai "github.com/openai/openai-go/v3"
	oopt "github.com/openai/openai-go/v3/option"
	"google.golang.org/genai"

	"github.com/spachava753/invoke"
	"github.com/spachava753/invoke/anthropic"
	"github.com/spachava753/invoke/gemini"
	"github.com/spachava753/invoke/internal/config"
	"github.com/spachava753/invoke/openai"
	"github.com/spachava753/invoke/sse"
)

// transportFactory builds the Transport for a provider from its config entry.
type transportFactory func(ctx context.Context, provider string, pc config.ProviderConfig) (invoke.Transport, error)

var providerFactories = map[string]transportFactory{
	"sse":       newSSETransport,
	"anthropic": newAnthropicTransport,
	"bedrock":   newBedrockTransport,
	"openai":    newOpenAITransport,
	"gemini":    newGeminiTransport,
}

func defaultTransport(ctx context.Context, provider string, pc config.ProviderConfig) (invoke.Transport, error) {
	factory, ok := providerFactories[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (available: %s)", provider, strings.Join(providerNames(), ", "))
	}
	return factory(ctx, provider, pc)
}

func providerNames() []string {
	names := make([]string, 0, len(providerFactories))
	for name := range providerFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newSSETransport(_ context.Context, _ string, pc config.ProviderConfig) (invoke.Transport, error) {
	if pc.BaseURL == "" {
		return nil, fmt.Errorf("provider sse requires base_url in config")
	}
	var opts []sse.Option
	if key := pc.APIKey(); key != "" {
		opts = append(opts, sse.WithHeader("Authorization", "Bearer "+key))
	}
	if pc.FragmentPath != "" {
		opts = append(opts, sse.WithFragmentPath(pc.FragmentPath))
	}
	if len(pc.FallbackURLs) == 0 {
		return sse.New(pc.BaseURL, opts...), nil
	}
	transports := []invoke.Transport{sse.New(pc.BaseURL, opts...)}
	for _, u := range pc.FallbackURLs {
		transports = append(transports, sse.New(u, opts...))
	}
	ft, err := invoke.NewFallbackTransport(transports, nil)
	if err != nil {
		return nil, err
	}
	return ft, nil
}

// The SDK clients fall back to their usual environment variables when no key is configured.
func newAnthropicTransport(_ context.Context, _ string, pc config.ProviderConfig) (invoke.Transport, error) {
	var opts []aopt.RequestOption
	if key := pc.APIKey(); key != "" {
		opts = append(opts, aopt.WithAPIKey(key))
	}
	if pc.BaseURL != "" {
		opts = append(opts, aopt.WithBaseURL(pc.BaseURL))
	}
	client := a.NewClient(opts...)
	return anthropic.New(&client.Messages), nil
}

func newBedrockTransport(ctx context.Context, _ string, _ config.ProviderConfig) (invoke.Transport, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := a.NewClient(bedrock.WithConfig(cfg))
	return anthropic.New(&client.Messages), nil
}

func newOpenAITransport(_ context.Context, _ string, pc config.ProviderConfig) (invoke.Transport, error) {
	var opts []oopt.RequestOption
	if key := pc.APIKey(); key != "" {
		opts = append(opts, oopt.WithAPIKey(key))
	}
	if pc.BaseURL != "" {
		opts = append(opts, oopt.WithBaseURL(pc.BaseURL))
	}
	client := oai.NewClient(opts...)
	return openai.New(&client.Chat.Completions), nil
}

func newGeminiTransport(ctx context.Context, _ string, pc config.ProviderConfig) (invoke.Transport, error) {
	cc := &genai.ClientConfig{
		APIKey:      pc.APIKey(),
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: pc.BaseURL},
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return gemini.New(client.Models), nil
}
