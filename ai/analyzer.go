package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"sheetlens/domain/upload"
	"sheetlens/internal"
	"sheetlens/internal/errors"
	"sheetlens/ports"
)

// InsightAnalyzer turns dataset summaries into AI insights using the first
// configured provider in priority order.
type InsightAnalyzer struct {
	providers  []ports.InsightProvider
	prompts    *PromptManager
	promptRows int
	logger     *internal.Logger
}

// NewInsightAnalyzer creates an analyzer over providers, most preferred first.
// promptRows bounds how many records reach the prompt.
func NewInsightAnalyzer(providers []ports.InsightProvider, prompts *PromptManager, promptRows int, logger *internal.Logger) *InsightAnalyzer {
	if prompts == nil {
		prompts = NewPromptManager("")
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &InsightAnalyzer{
		providers:  providers,
		prompts:    prompts,
		promptRows: promptRows,
		logger:     logger,
	}
}

// ActiveProvider returns the provider that would serve the next request
func (a *InsightAnalyzer) ActiveProvider() (ports.InsightProvider, bool) {
	for _, p := range a.providers {
		if p.Configured() {
			return p, true
		}
	}
	return nil, false
}

// Generate builds a bounded prompt and asks the active provider for an insight,
// walking its model list until one succeeds.
func (a *InsightAnalyzer) Generate(ctx context.Context, summary DatasetSummary) (*upload.Insight, error) {
	provider, ok := a.ActiveProvider()
	if !ok {
		return nil, errors.NoProviderConfigured()
	}

	prompt, err := a.prompts.BuildInsightPrompt(summary, a.promptRows)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build insight prompt")
	}

	models := provider.Models()
	if len(models) == 0 {
		return nil, errors.ProviderError(errors.CodeModelUnavailable, provider.Name(), fmt.Errorf("no models configured"))
	}

	var lastErr error
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return nil, errors.ProviderError(errors.CodeTransientNetwork, provider.Name(), err)
		}

		insight, err := a.tryModel(ctx, provider, model, prompt)
		if err == nil {
			return insight, nil
		}
		lastErr = err

		code := errors.GetCode(err)
		a.logger.Warn("[InsightAnalyzer] %s model %s failed (%s): %v", provider.Name(), model, code, err)
		if code == errors.CodeAuthError {
			break
		}
	}
	return nil, lastErr
}

func (a *InsightAnalyzer) tryModel(ctx context.Context, provider ports.InsightProvider, model, prompt string) (*upload.Insight, error) {
	start := time.Now()
	resp, err := provider.Complete(ctx, model, prompt)
	if err != nil {
		return nil, err
	}

	insight, err := ParseInsight(resp.Content)
	if err != nil {
		return nil, errors.ProviderError(errors.CodeMalformedInsight, provider.Name(), fmt.Errorf("model %s: %w", model, err))
	}

	insight.SummaryHTML = renderMarkdown(insight.Summary)
	insight.GeneratedBy = provider.Name()
	insight.Model = model
	insight.GeneratedAt = time.Now().UTC()

	if resp.Usage != nil {
		a.logger.WithFields(map[string]interface{}{
			"provider":          provider.Name(),
			"model":             model,
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"latency_ms":        time.Since(start).Milliseconds(),
		}).Info("insight generated")
	} else {
		a.logger.Info("[InsightAnalyzer] insight generated by %s/%s in %s", provider.Name(), model, time.Since(start))
	}
	return insight, nil
}

// renderMarkdown converts the summary to HTML, dropping any raw HTML the model emitted
func renderMarkdown(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	return string(markdown.ToHTML([]byte(md), p, renderer))
}
