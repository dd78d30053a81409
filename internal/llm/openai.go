package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

type openAIBackend struct {
	client *openai.Client
	model  string
}

func newOpenAI(apiKey, model string, s settings) (backend, error) {
	cfg := openai.DefaultConfig(apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	return &openAIBackend{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

var openAIRoles = map[Role]string{
	RoleSystem:    openai.ChatMessageRoleSystem,
	RoleUser:      openai.ChatMessageRoleUser,
	RoleAssistant: openai.ChatMessageRoleAssistant,
}

func openAIRequest(model string, req Request) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{Model: model, MaxTokens: req.MaxTokens}
	for _, m := range req.Messages {
		role, ok := openAIRoles[m.Role]
		if !ok {
			continue
		}
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if req.JSON {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}

func (b *openAIBackend) generate(ctx context.Context, req Request) (string, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openAIRequest(b.model, req))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
