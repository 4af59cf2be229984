package llm

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"sheetlens/ports"
)

const (
	geminiName    = "gemini"
	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

var _ ports.InsightProvider = (*GeminiProvider)(nil)

// GeminiProvider talks to the generateContent API
type GeminiProvider struct {
	config Config
}

// NewGeminiProvider creates a Gemini backend
func NewGeminiProvider(config Config) *GeminiProvider {
	return &GeminiProvider{config: config}
}

func (p *GeminiProvider) Name() string { return geminiName }

func (p *GeminiProvider) Configured() bool { return strings.TrimSpace(p.config.APIKey) != "" }

func (p *GeminiProvider) Models() []string { return p.config.Models }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// Complete sends one prompt to model. The key travels in a header so it never
// shows up in logged URLs.
func (p *GeminiProvider) Complete(ctx context.Context, model string, prompt string) (*ports.LLMResponse, error) {
	var body geminiRequest
	if p.config.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: p.config.SystemPrompt}}}
	}
	body.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	body.GenerationConfig.Temperature = p.config.Temperature
	body.GenerationConfig.MaxOutputTokens = p.config.MaxTokens

	endpoint := p.config.baseURL(geminiBaseURL) + "/models/" + url.PathEscape(model) + ":generateContent"
	headers := map[string]string{"x-goog-api-key": p.config.APIKey}

	raw, err := postJSON(ctx, p.config, geminiName, model, endpoint, headers, body)
	if err != nil {
		return nil, err
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, malformed(geminiName, model, "response envelope is not JSON")
	}
	if decoded.PromptFeedback != nil && decoded.PromptFeedback.BlockReason != "" {
		return nil, filtered(geminiName, model, "prompt blocked: "+decoded.PromptFeedback.BlockReason)
	}
	if len(decoded.Candidates) == 0 {
		return nil, malformed(geminiName, model, "response has no candidates")
	}
	candidate := decoded.Candidates[0]
	if candidate.FinishReason == "SAFETY" || candidate.FinishReason == "PROHIBITED_CONTENT" {
		return nil, filtered(geminiName, model, "candidate blocked: "+candidate.FinishReason)
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, malformed(geminiName, model, "candidate has no text")
	}

	resp := &ports.LLMResponse{Content: text.String()}
	if decoded.UsageMetadata != nil {
		resp.Usage = &ports.UsageData{
			PromptTokens:     decoded.UsageMetadata.PromptTokenCount,
			CompletionTokens: decoded.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      decoded.UsageMetadata.TotalTokenCount,
			Model:            model,
			Provider:         geminiName,
		}
	}
	return resp, nil
}
