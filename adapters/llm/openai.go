package llm

import (
	"context"
	"encoding/json"
	"strings"

	"sheetlens/ports"
)

const (
	openAIName    = "openai"
	openAIBaseURL = "https://api.openai.com/v1"
)

var _ ports.InsightProvider = (*OpenAIProvider)(nil)

// OpenAIProvider talks to the chat completions API
type OpenAIProvider struct {
	config Config
}

// NewOpenAIProvider creates an OpenAI backend
func NewOpenAIProvider(config Config) *OpenAIProvider {
	return &OpenAIProvider{config: config}
}

func (p *OpenAIProvider) Name() string { return openAIName }

func (p *OpenAIProvider) Configured() bool { return strings.TrimSpace(p.config.APIKey) != "" }

func (p *OpenAIProvider) Models() []string { return p.config.Models }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends one system + one user message to model
func (p *OpenAIProvider) Complete(ctx context.Context, model string, prompt string) (*ports.LLMResponse, error) {
	body := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: p.config.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: p.config.Temperature,
		MaxTokens:   p.config.MaxTokens,
	}

	url := p.config.baseURL(openAIBaseURL) + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + p.config.APIKey}

	raw, err := postJSON(ctx, p.config, openAIName, model, url, headers, body)
	if err != nil {
		return nil, err
	}

	var decoded openAIResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, malformed(openAIName, model, "response envelope is not JSON")
	}
	if len(decoded.Choices) == 0 {
		return nil, malformed(openAIName, model, "response has no choices")
	}
	choice := decoded.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, filtered(openAIName, model, "completion stopped by content filter")
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, malformed(openAIName, model, "completion is empty")
	}

	resp := &ports.LLMResponse{Content: choice.Message.Content}
	if decoded.Usage != nil {
		resp.Usage = &ports.UsageData{
			PromptTokens:     decoded.Usage.PromptTokens,
			CompletionTokens: decoded.Usage.CompletionTokens,
			TotalTokens:      decoded.Usage.TotalTokens,
			Model:            model,
			Provider:         openAIName,
		}
	}
	return resp, nil
}
