package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sheetlens/internal/errors"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DefaultMaxFileSize = 10 * 1024 * 1024
)

var (
	DefaultOpenAIModels = []string{"gpt-4o-mini", "gpt-3.5-turbo"}
	DefaultGeminiModels = []string{"gemini-1.5-flash", "gemini-1.5-pro", "gemini-pro", "gemini-1.0-pro"}
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	AI       AIConfig       `validate:"required"`
	Server   ServerConfig   `validate:"required"`
	Upload   UploadConfig   `validate:"required"`
	Pipeline PipelineConfig `validate:"required"`
}

// DatabaseConfig holds database connection settings. An empty URL selects
// the in-memory repository.
type DatabaseConfig struct {
	URL string
}

// ProviderConfig describes one insight backend
type ProviderConfig struct {
	Name    string   `validate:"required,oneof=openai gemini"`
	APIKey  string   `yaml:"-"`
	BaseURL string   `yaml:"base_url" validate:"omitempty,url"`
	Models  []string `yaml:"models" validate:"required,min=1,dive,required"`
}

// Configured reports whether a usable credential is present
func (p ProviderConfig) Configured() bool {
	return strings.TrimSpace(p.APIKey) != ""
}

// AIConfig holds insight provider settings
type AIConfig struct {
	Order         []string                  `validate:"required,min=1,dive,oneof=openai gemini"`
	Providers     map[string]ProviderConfig `validate:"required,dive"`
	SystemContext string
	PromptsDir    string
	MaxTokens     int           `validate:"gt=0"`
	Temperature   float64       `validate:"gte=0,lte=2"`
	Timeout       time.Duration `validate:"gt=0"`
}

// Provider returns the settings for name, if known
func (c AIConfig) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string `validate:"required"`
	GinMode string `validate:"omitempty,oneof=debug release test"`
}

// UploadConfig holds upload acceptance settings
type UploadConfig struct {
	MaxFileSize int64  `validate:"gt=0"`
	Dir         string `validate:"required"`
}

// PipelineConfig holds background processing settings
type PipelineConfig struct {
	Concurrency int `validate:"gt=0"`
	SampleRows  int `validate:"gt=0"`
	PromptRows  int `validate:"gt=0"`
}

// providerFile is the optional YAML layout for INSIGHT_PROVIDERS_FILE
type providerFile struct {
	Order     []string                  `yaml:"order"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

var validate = validator.New()

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	config.Database = DatabaseConfig{URL: os.Getenv("DATABASE_URL")}

	aiConfig, err := loadAIConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AI configuration")
	}
	config.AI = *aiConfig

	config.Server = *loadServerConfig()
	config.Upload = *loadUploadConfig()
	config.Pipeline = *loadPipelineConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadAIConfig() (*AIConfig, error) {
	cfg := &AIConfig{
		Order: []string{ProviderOpenAI, ProviderGemini},
		Providers: map[string]ProviderConfig{
			ProviderOpenAI: {
				Name:    ProviderOpenAI,
				BaseURL: "https://api.openai.com/v1",
				Models:  append([]string(nil), DefaultOpenAIModels...),
			},
			ProviderGemini: {
				Name:    ProviderGemini,
				BaseURL: "https://generativelanguage.googleapis.com/v1beta",
				Models:  append([]string(nil), DefaultGeminiModels...),
			},
		},
		SystemContext: "You are an expert data analyst. Provide clear, actionable insights about datasets in JSON format.",
		PromptsDir:    os.Getenv("PROMPTS_DIR"),
		MaxTokens:     getEnvIntOrDefault("MAX_TOKENS", 1000),
		Temperature:   getEnvFloatOrDefault("TEMPERATURE", 0.3),
		Timeout:       getEnvDurationOrDefault("INSIGHT_TIMEOUT", 30*time.Second),
	}

	if path := os.Getenv("INSIGHT_PROVIDERS_FILE"); path != "" {
		if err := applyProviderFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if order := getEnvList("INSIGHT_PROVIDER_ORDER"); len(order) > 0 {
		cfg.Order = lowerList(order)
	}
	overrideProvider(cfg, ProviderOpenAI, "OPENAI")
	overrideProvider(cfg, ProviderGemini, "GEMINI")

	return cfg, nil
}

// applyProviderFile overlays order, base URLs and model lists from YAML
func applyProviderFile(cfg *AIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("read provider file %s: %w", path, err))
	}
	var file providerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("parse provider file %s: %w", path, err))
	}

	if len(file.Order) > 0 {
		cfg.Order = lowerList(file.Order)
	}
	for name, p := range file.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		current, ok := cfg.Providers[name]
		if !ok {
			return errors.ConfigInvalid(fmt.Sprintf("unknown insight provider %q in %s", name, path))
		}
		if p.BaseURL != "" {
			current.BaseURL = p.BaseURL
		}
		if len(p.Models) > 0 {
			current.Models = trimList(p.Models)
		}
		cfg.Providers[name] = current
	}
	return nil
}

func overrideProvider(cfg *AIConfig, name, prefix string) {
	p := cfg.Providers[name]
	p.APIKey = os.Getenv(prefix + "_API_KEY")
	p.BaseURL = getEnvOrDefault(prefix+"_BASE_URL", p.BaseURL)
	if models := getEnvList(prefix + "_MODELS"); len(models) > 0 {
		p.Models = models
	}
	cfg.Providers[name] = p
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "debug"),
	}
}

func loadUploadConfig() *UploadConfig {
	return &UploadConfig{
		MaxFileSize: int64(getEnvIntOrDefault("MAX_FILE_SIZE", DefaultMaxFileSize)),
		Dir:         getEnvOrDefault("UPLOAD_DIR", "uploads"),
	}
}

func loadPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Concurrency: getEnvIntOrDefault("PIPELINE_CONCURRENCY", 4),
		SampleRows:  getEnvIntOrDefault("SAMPLE_ROWS", 10),
		PromptRows:  getEnvIntOrDefault("PROMPT_ROWS", 20),
	}
}

func validateConfig(config *Config) error {
	if err := validate.Struct(config); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.ConfigInvalid(strings.Join(fields, "; "))
		}
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	seen := make(map[string]bool, len(config.AI.Order))
	for _, name := range config.AI.Order {
		if seen[name] {
			return errors.ConfigInvalid(fmt.Sprintf("insight provider %q listed twice", name))
		}
		seen[name] = true
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	return trimList(strings.Split(value, ","))
}

func trimList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func lowerList(items []string) []string {
	out := trimList(items)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}
