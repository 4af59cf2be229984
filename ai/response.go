package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"sheetlens/domain/upload"
)

// stringList accepts an array of scalars or a single string
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = stringList{single}
		return nil
	}
	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(stringList, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case nil:
		default:
			raw, _ := json.Marshal(v)
			out = append(out, string(raw))
		}
	}
	*s = out
	return nil
}

type rawQuality struct {
	Completeness *float64 `json:"completeness"`
	Consistency  *float64 `json:"consistency"`
	Accuracy     *float64 `json:"accuracy"`
}

// rawInsight accepts both camelCase and snake_case keys
type rawInsight struct {
	Summary          string      `json:"summary"`
	KeyFindings      stringList  `json:"keyFindings"`
	KeyFindingsSnake stringList  `json:"key_findings"`
	Recommendations  stringList  `json:"recommendations"`
	DataQuality      *rawQuality `json:"dataQuality"`
	DataQualitySnake *rawQuality `json:"data_quality"`
}

// ParseInsight turns a model's raw text into insight fields. The text may be
// bare JSON, fenced JSON, or JSON embedded in prose.
func ParseInsight(content string) (*upload.Insight, error) {
	cleaned := cleanJSONContent(content)

	var raw rawInsight
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		if !findJSONObject(content, &raw) {
			return nil, fmt.Errorf("no JSON object found in response: %w", err)
		}
	}

	return raw.toInsight()
}

func (r *rawInsight) toInsight() (*upload.Insight, error) {
	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		return nil, fmt.Errorf("response has an empty summary")
	}

	quality := r.DataQuality
	if quality == nil {
		quality = r.DataQualitySnake
	}
	if quality == nil {
		return nil, fmt.Errorf("response has no dataQuality block")
	}

	completeness, err := normalizeScore("completeness", quality.Completeness)
	if err != nil {
		return nil, err
	}
	consistency, err := normalizeScore("consistency", quality.Consistency)
	if err != nil {
		return nil, err
	}
	accuracy, err := normalizeScore("accuracy", quality.Accuracy)
	if err != nil {
		return nil, err
	}

	findings := r.KeyFindings
	if len(findings) == 0 {
		findings = r.KeyFindingsSnake
	}

	return &upload.Insight{
		Summary:         summary,
		KeyFindings:     nonEmpty(findings),
		Recommendations: nonEmpty(r.Recommendations),
		DataQuality: upload.DataQuality{
			Completeness: completeness,
			Consistency:  consistency,
			Accuracy:     accuracy,
		},
	}, nil
}

// normalizeScore maps a score to [0,1]; values in (1,100] are read as percentages
func normalizeScore(name string, v *float64) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("dataQuality.%s is missing", name)
	}
	score := *v
	switch {
	case score >= 0 && score <= 1:
		return score, nil
	case score > 1 && score <= 100:
		return score / 100, nil
	default:
		return 0, fmt.Errorf("dataQuality.%s out of range: %g", name, score)
	}
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// cleanJSONContent removes markdown code fences around JSON content
func cleanJSONContent(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") && strings.HasSuffix(content, "```") && len(content) >= 6 {
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimPrefix(content, "```")
		// Drop a language tag such as json on the opening fence line
		if nl := strings.IndexByte(content, '\n'); nl >= 0 && !strings.ContainsAny(content[:nl], "{[") {
			content = content[nl+1:]
		}
		content = strings.TrimSpace(content)
	}

	return content
}

// findJSONObject scans for balanced {...} spans, honouring string literals and
// escapes, and decodes the first one that parses into dst.
func findJSONObject(content string, dst *rawInsight) bool {
	for start := strings.IndexByte(content, '{'); start >= 0; {
		// an unbalanced or undecodable span may be a stray brace in prose
		if end := balancedEnd(content, start); end >= 0 {
			var candidate rawInsight
			if err := json.Unmarshal([]byte(content[start:end+1]), &candidate); err == nil {
				*dst = candidate
				return true
			}
		}
		next := strings.IndexByte(content[start+1:], '{')
		if next < 0 {
			return false
		}
		start += next + 1
	}
	return false
}

// balancedEnd returns the index of the brace closing the one at start, or -1
func balancedEnd(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
