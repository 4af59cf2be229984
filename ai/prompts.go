package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sheetlens/domain/table"
	"sheetlens/domain/upload"
)

// InsightPromptName is the template file looked up in the prompts directory
const InsightPromptName = "dataset_insight"

// defaultInsightTemplate is used when no template file overrides it
const defaultInsightTemplate = `As a data analyst, analyze this Excel dataset and provide comprehensive insights.

Dataset Overview:
- Total Rows: {TOTAL_ROWS}
- Total Columns: {TOTAL_COLUMNS}
- Empty Rows: {EMPTY_ROWS}
- Duplicate Rows: {DUPLICATE_ROWS}

Column Information:
{COLUMNS}

Sample Data (first {SAMPLE_COUNT} rows):
{SAMPLE_ROWS}

Respond with a single JSON object in exactly this format:
{
  "summary": "Brief overview of the dataset",
  "keyFindings": ["finding1", "finding2", "finding3"],
  "recommendations": ["recommendation1", "recommendation2"],
  "dataQuality": {
    "completeness": 0.95,
    "consistency": 0.90,
    "accuracy": 0.85
  }
}

dataQuality scores are fractions between 0 and 1.

Focus on:
1. Data quality assessment
2. Pattern identification
3. Anomaly detection
4. Business insights
5. Actionable recommendations`

// PromptManager - simple external prompt loader with a built-in default
type PromptManager struct {
	PromptsDir string
}

// NewPromptManager creates a prompt manager. An empty dir means built-in templates only.
func NewPromptManager(promptsDir string) *PromptManager {
	return &PromptManager{PromptsDir: promptsDir}
}

// LoadPrompt loads a prompt template by name, falling back to the built-in one
func (pm *PromptManager) LoadPrompt(name string) (string, error) {
	if pm.PromptsDir != "" {
		path := filepath.Join(pm.PromptsDir, name+".txt")
		content, err := os.ReadFile(path)
		if err == nil {
			return string(content), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to load prompt %s: %w", name, err)
		}
	}
	if name == InsightPromptName {
		return defaultInsightTemplate, nil
	}
	return "", fmt.Errorf("prompt template not found: %s", name)
}

// RenderPrompt replaces {PLACEHOLDER} with values
func (pm *PromptManager) RenderPrompt(name string, replacements map[string]string) (string, error) {
	template, err := pm.LoadPrompt(name)
	if err != nil {
		return "", err
	}

	// Single pass so values that contain {PLACEHOLDER} text stay literal
	pairs := make([]string, 0, len(replacements)*2)
	for placeholder, value := range replacements {
		pairs = append(pairs, "{"+placeholder+"}", value)
	}

	return strings.NewReplacer(pairs...).Replace(template), nil
}

// DatasetSummary is the bounded view of a dataset that goes into a prompt
type DatasetSummary struct {
	Schema     []upload.Column
	Statistics upload.DataStatistics
	Records    []table.Record
}

// BuildInsightPrompt renders the insight prompt with at most maxRows records
func (pm *PromptManager) BuildInsightPrompt(summary DatasetSummary, maxRows int) (string, error) {
	records := summary.Records
	if maxRows >= 0 && len(records) > maxRows {
		records = records[:maxRows]
	}
	if records == nil {
		records = []table.Record{}
	}

	sample, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode sample rows: %w", err)
	}

	var columns strings.Builder
	for i, col := range summary.Schema {
		if i > 0 {
			columns.WriteByte('\n')
		}
		fmt.Fprintf(&columns, "- %s: %s data", col.Name, col.Type)
		if num, ok := summary.Statistics.NumericSummaries[col.Name]; ok {
			fmt.Fprintf(&columns, " (min %g, max %g, mean %.4g)", num.Min, num.Max, num.Mean)
		}
	}

	st := summary.Statistics
	return pm.RenderPrompt(InsightPromptName, map[string]string{
		"TOTAL_ROWS":     strconv.Itoa(st.TotalRows),
		"TOTAL_COLUMNS":  strconv.Itoa(st.TotalColumns),
		"EMPTY_ROWS":     strconv.Itoa(st.EmptyRows),
		"DUPLICATE_ROWS": strconv.Itoa(st.DuplicateRows),
		"COLUMNS":        columns.String(),
		"SAMPLE_COUNT":   strconv.Itoa(len(records)),
		"SAMPLE_ROWS":    string(sample),
	})
}
