package llm

import (
	"net/http"

	"sheetlens/internal/config"
	"sheetlens/ports"
)

// NewProviders builds one backend per entry of cfg.Order, keeping that order.
// Unknown names are skipped; config validation rejects them earlier.
func NewProviders(cfg config.AIConfig, client *http.Client) []ports.InsightProvider {
	providers := make([]ports.InsightProvider, 0, len(cfg.Order))
	for _, name := range cfg.Order {
		pc, ok := cfg.Provider(name)
		if !ok {
			continue
		}
		c := Config{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			Models:       pc.Models,
			SystemPrompt: cfg.SystemContext,
			Temperature:  cfg.Temperature,
			MaxTokens:    cfg.MaxTokens,
			Timeout:      cfg.Timeout,
			HTTPClient:   client,
		}
		switch name {
		case config.ProviderOpenAI:
			providers = append(providers, NewOpenAIProvider(c))
		case config.ProviderGemini:
			providers = append(providers, NewGeminiProvider(c))
		}
	}
	return providers
}
