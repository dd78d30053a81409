package llm

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicBackend struct {
	messages anthropic.MessageService
	model    string
}

func newAnthropic(apiKey, model string, s settings) (backend, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		opts = append(opts, option.WithBaseURL(s.baseURL))
	}
	c := anthropic.NewClient(opts...)
	return &anthropicBackend{messages: c.Messages, model: model}, nil
}

// anthropicParams moves system prompts out of the turn list. The Messages
// API has no JSON mode, so JSON requests get an extra instruction.
func anthropicParams(model string, req Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.tokenCap()),
	}
	if sys := req.system(); sys != "" {
		params.System = append(params.System, anthropic.TextBlockParam{Text: sys})
	}
	if req.JSON {
		params.System = append(params.System, anthropic.TextBlockParam{Text: jsonInstruction})
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		}
	}
	return params
}

func (b *anthropicBackend) generate(ctx context.Context, req Request) (string, error) {
	msg, err := b.messages.New(ctx, anthropicParams(b.model, req))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}
