package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sheetlens/domain/table"
	"sheetlens/domain/upload"
	"sheetlens/internal/errors"
	"sheetlens/ports"
)

type mockProvider struct {
	mock.Mock
	name       string
	configured bool
	models     []string
}

func (m *mockProvider) Name() string     { return m.name }
func (m *mockProvider) Configured() bool { return m.configured }
func (m *mockProvider) Models() []string { return m.models }

func (m *mockProvider) Complete(ctx context.Context, model string, prompt string) (*ports.LLMResponse, error) {
	args := m.Called(model, prompt)
	if resp, ok := args.Get(0).(*ports.LLMResponse); ok {
		return resp, args.Error(1)
	}
	return nil, args.Error(1)
}

const validInsight = `{"summary":"Sales **grew**","keyFindings":["a","b"],"recommendations":["c"],"dataQuality":{"completeness":0.9,"consistency":0.8,"accuracy":0.7}}`

func testSummary(rows int) DatasetSummary {
	headers := []string{"Name", "Age"}
	records := make([]table.Record, rows)
	for i := range records {
		records[i] = table.NewRecord(headers, []table.Value{table.String(fmt.Sprintf("row-%d", i)), table.Number(float64(i))})
	}
	return DatasetSummary{
		Schema: []upload.Column{
			{Name: "Name", Type: upload.TypeText, Index: 0},
			{Name: "Age", Type: upload.TypeNumber, Index: 1},
		},
		Statistics: upload.DataStatistics{TotalRows: rows, TotalColumns: 2, EmptyRows: 0, DuplicateRows: 0},
		Records:    records,
	}
}

func TestGenerateNoProviderConfigured(t *testing.T) {
	openai := &mockProvider{name: "openai", models: []string{"m1"}}
	gemini := &mockProvider{name: "gemini", models: []string{"g1"}}

	analyzer := NewInsightAnalyzer([]ports.InsightProvider{openai, gemini}, nil, 20, nil)
	_, err := analyzer.Generate(context.Background(), testSummary(3))

	require.Error(t, err)
	assert.Equal(t, errors.CodeNoProvider, errors.GetCode(err))
	openai.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestGenerateUsesFirstConfiguredProvider(t *testing.T) {
	openai := &mockProvider{name: "openai", models: []string{"m1"}}
	gemini := &mockProvider{name: "gemini", configured: true, models: []string{"g1"}}
	gemini.On("Complete", "g1", mock.Anything).Return(&ports.LLMResponse{Content: validInsight}, nil)

	analyzer := NewInsightAnalyzer([]ports.InsightProvider{openai, gemini}, nil, 20, nil)
	insight, err := analyzer.Generate(context.Background(), testSummary(3))

	require.NoError(t, err)
	assert.Equal(t, "gemini", insight.GeneratedBy)
	assert.Equal(t, "g1", insight.Model)
	assert.Equal(t, "Sales **grew**", insight.Summary)
	assert.Contains(t, insight.SummaryHTML, "<strong>grew</strong>")
	assert.False(t, insight.GeneratedAt.IsZero())
	gemini.AssertExpectations(t)
}

func TestGenerateFallsBackAcrossModels(t *testing.T) {
	p := &mockProvider{name: "openai", configured: true, models: []string{"m1", "m2", "m3"}}
	p.On("Complete", "m1", mock.Anything).Return(nil, errors.ProviderError(errors.CodeModelUnavailable, "openai", fmt.Errorf("404")))
	p.On("Complete", "m2", mock.Anything).Return(&ports.LLMResponse{Content: "I cannot help with that."}, nil)
	p.On("Complete", "m3", mock.Anything).Return(&ports.LLMResponse{Content: validInsight}, nil)

	insight, err := NewInsightAnalyzer([]ports.InsightProvider{p}, nil, 20, nil).Generate(context.Background(), testSummary(2))

	require.NoError(t, err)
	assert.Equal(t, "m3", insight.Model)
	p.AssertNumberOfCalls(t, "Complete", 3)
}

func TestGenerateStopsOnAuthError(t *testing.T) {
	p := &mockProvider{name: "openai", configured: true, models: []string{"m1", "m2"}}
	p.On("Complete", "m1", mock.Anything).Return(nil, errors.ProviderError(errors.CodeAuthError, "openai", fmt.Errorf("401")))

	_, err := NewInsightAnalyzer([]ports.InsightProvider{p}, nil, 20, nil).Generate(context.Background(), testSummary(2))

	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthError, errors.GetCode(err))
	p.AssertNumberOfCalls(t, "Complete", 1)
}

func TestGenerateReturnsLastError(t *testing.T) {
	p := &mockProvider{name: "gemini", configured: true, models: []string{"g1", "g2"}}
	p.On("Complete", "g1", mock.Anything).Return(nil, errors.ProviderError(errors.CodeQuotaExceeded, "gemini", fmt.Errorf("429")))
	p.On("Complete", "g2", mock.Anything).Return(nil, errors.ProviderError(errors.CodeTransientNetwork, "gemini", fmt.Errorf("timeout")))

	_, err := NewInsightAnalyzer([]ports.InsightProvider{p}, nil, 20, nil).Generate(context.Background(), testSummary(2))

	require.Error(t, err)
	assert.Equal(t, errors.CodeTransientNetwork, errors.GetCode(err))
}

func TestPromptIsBounded(t *testing.T) {
	p := &mockProvider{name: "openai", configured: true, models: []string{"m1"}}
	p.On("Complete", "m1", mock.Anything).Return(&ports.LLMResponse{Content: validInsight}, nil)

	_, err := NewInsightAnalyzer([]ports.InsightProvider{p}, nil, 20, nil).Generate(context.Background(), testSummary(50))
	require.NoError(t, err)

	prompt := p.Calls[0].Arguments.String(1)
	assert.Contains(t, prompt, "row-19")
	assert.NotContains(t, prompt, "row-20")
	assert.Contains(t, prompt, "Total Rows: 50")
	assert.Contains(t, prompt, "- Age: number data")
	assert.Contains(t, prompt, "first 20 rows")
}

func TestPromptTemplateOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, InsightPromptName+".txt"), []byte("rows={TOTAL_ROWS} cols={TOTAL_COLUMNS}"), 0o600))

	prompt, err := NewPromptManager(dir).BuildInsightPrompt(testSummary(4), 20)
	require.NoError(t, err)
	assert.Equal(t, "rows=4 cols=2", prompt)
}

func TestPromptValuesAreNotReexpanded(t *testing.T) {
	summary := testSummary(0)
	summary.Schema[0].Name = "{TOTAL_ROWS}"

	prompt, err := NewPromptManager("").BuildInsightPrompt(summary, 20)
	require.NoError(t, err)
	assert.True(t, strings.Contains(prompt, "- {TOTAL_ROWS}: text data"))
}
