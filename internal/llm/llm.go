// Package llm sends chat prompts to a hosted language model. A model is named
// "provider/model", for example gemini/gemini-1.5-flash.
package llm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// defaultMaxTokens applies when a provider needs an explicit output cap and
// the request does not set one.
const defaultMaxTokens = 4096

// jsonInstruction is added as a system prompt for providers without a native
// JSON response mode.
const jsonInstruction = "Respond with a single JSON document and no surrounding prose."

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	ErrUnknownProvider = errors.New("unknown llm provider")
	ErrNoPrompt        = errors.New("no user message")
	ErrEmptyResponse   = errors.New("empty response")
)

type Message struct {
	Role    Role
	Content string
}

func System(content string) Message { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message   { return Message{Role: RoleUser, Content: content} }

// Request is one completion call. JSON asks for a bare JSON document.
// MaxTokens of zero leaves the cap to the provider.
type Request struct {
	Messages  []Message
	JSON      bool
	MaxTokens int
}

func (r Request) validate() error {
	for _, m := range r.Messages {
		if m.Role == RoleUser && strings.TrimSpace(m.Content) != "" {
			return nil
		}
	}
	return ErrNoPrompt
}

// system joins every system message into one prompt.
func (r Request) system() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (r Request) tokenCap() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Option func(*settings)

type settings struct {
	baseURL string
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// backend performs the provider call and returns the raw text.
type backend interface {
	generate(ctx context.Context, req Request) (string, error)
}

type factory func(apiKey, model string, s settings) (backend, error)

var providers = map[string]factory{
	"anthropic": newAnthropic,
	"gemini":    newGemini,
	"openai":    newOpenAI,
}

// Providers lists the supported provider names in sorted order.
func Providers() []string {
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ParseModel splits "provider/model". The provider is lowercased; the model
// name is kept as written since some providers use slashes inside it.
func ParseModel(name string) (provider, model string, err error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(name), "/")
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !ok || provider == "" || model == "" {
		return "", "", fmt.Errorf("invalid model %q: expected provider/model_name", name)
	}
	return provider, model, nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	build, ok := providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnknownProvider, provider, strings.Join(Providers(), ", "))
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s: api key required", provider)
	}
	if model == "" {
		return nil, fmt.Errorf("%s: model name required", provider)
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	b, err := build(apiKey, model, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", provider, err)
	}
	return &client{provider: provider, model: model, backend: b}, nil
}

// client holds the checks shared by every provider.
type client struct {
	provider string
	model    string
	backend  backend
}

func (c *client) Complete(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", fmt.Errorf("%s: %w", c.provider, err)
	}
	text, err := c.backend.generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", c.provider, c.model, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s %s: %w", c.provider, c.model, ErrEmptyResponse)
	}
	return text, nil
}
