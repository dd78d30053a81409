package llm

import (
	"context"

	"google.golang.org/genai"
)

type geminiBackend struct {
	models *genai.Models
	model  string
}

func newGemini(apiKey, model string, s settings) (backend, error) {
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if s.baseURL != "" {
		cfg.HTTPOptions.BaseURL = s.baseURL
	}
	c, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &geminiBackend{models: c.Models, model: model}, nil
}

// geminiTurns maps the conversation onto Gemini contents, where the
// assistant is called "model".
func geminiTurns(messages []Message) []*genai.Content {
	var turns []*genai.Content
	for _, m := range messages {
		var role string
		switch m.Role {
		case RoleUser:
			role = "user"
		case RoleAssistant:
			role = "model"
		default:
			continue
		}
		turns = append(turns, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	return turns
}

func geminiConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if sys := req.system(); sys != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: sys}}}
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

func (b *geminiBackend) generate(ctx context.Context, req Request) (string, error) {
	resp, err := b.models.GenerateContent(ctx, b.model, geminiTurns(req.Messages), geminiConfig(req))
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
