package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
)

var ErrUnknownProvider = errors.New("unknown model provider")

// StreamRequest is a provider-agnostic streaming completion request.
type StreamRequest struct {
	SystemPrompt string
	History      []openai.ChatCompletionMessage
	Model        string
	Temperature  float32
}

// Provider yields text deltas for a streaming completion. Non-text stream
// events are discarded.
type Provider interface {
	Stream(ctx context.Context, req StreamRequest, onDelta func(chunk string) error) error
}

// ProviderSettings configures one provider entry of the registry.
type ProviderSettings struct {
	APIKey  string
	BaseURL string
	Timeout string
}

// Registry resolves an agent's configured provider name to an adapter. All
// three supported vendors expose OpenAI-compatible completion endpoints, so
// a single adapter implementation is configured per vendor with its base URL
// and key.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(settings map[string]ProviderSettings) *Registry {
	r := &Registry{providers: map[string]Provider{}}
	for name, s := range settings {
		r.providers[name] = &openAICompatible{client: NewClient(s.APIKey, s.BaseURL, s.Timeout)}
	}
	return r
}

// Register installs a custom provider, replacing any existing entry. Used by
// tests and by local OpenAI-compatible deployments.
func (r *Registry) Register(name string, p Provider) {
	r.providers[name] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

type openAICompatible struct {
	client LLMClient
}

func (p *openAICompatible) Stream(ctx context.Context, req StreamRequest, onDelta func(string) error) error {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, req.History...)

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		Stream:      true,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onDelta(delta); err != nil {
			return err
		}
	}
}
