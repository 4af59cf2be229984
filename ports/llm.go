package ports

import "context"

// UsageData represents raw usage data from LLM provider APIs
type UsageData struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// LLMResponse is the raw text of one completion plus usage, when reported
type LLMResponse struct {
	Content string
	Usage   *UsageData
}

// InsightProvider is one interchangeable text-generation backend.
// Complete returns errors carrying one of the insight failure codes.
type InsightProvider interface {
	// Name identifies the provider ("openai", "gemini")
	Name() string
	// Configured reports whether a usable credential is present
	Configured() bool
	// Models lists the models to try, most preferred first
	Models() []string
	// Complete sends one prompt to one model
	Complete(ctx context.Context, model string, prompt string) (*LLMResponse, error)
}
