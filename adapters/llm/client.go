package llm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sheetlens/internal/errors"
)

// maxErrorBody bounds how much of a failed response ends up in error messages
const maxErrorBody = 512

// Config holds the settings shared by every provider backend
type Config struct {
	APIKey       string        // provider credential
	BaseURL      string        // API root, e.g. https://api.openai.com/v1
	Models       []string      // tried in order
	SystemPrompt string        // instruction sent with every request
	Temperature  float64       // 0.0-2.0, lower = more deterministic
	MaxTokens    int           // max tokens in response
	Timeout      time.Duration // per-request bound
	HTTPClient   *http.Client  // optional, defaults to a plain client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{}
}

func (c Config) baseURL(fallback string) string {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = fallback
	}
	return strings.TrimRight(base, "/")
}

// postJSON sends body to url and returns the raw response for 2xx answers.
// Every failure comes back as a classified AppError.
func postJSON(ctx context.Context, cfg Config, provider, model, url string, headers map[string]string, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := cfg.httpClient().Do(httpReq)
	if err != nil {
		return nil, classifyTransport(provider, model, err)
	}
	defer resp.Body.Close()

	respRaw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(provider, model, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyHTTP(provider, model, resp.StatusCode, respRaw)
	}
	return respRaw, nil
}

// classifyTransport maps connection failures and timeouts
func classifyTransport(provider, model string, err error) error {
	var netErr net.Error
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("model %s: request timed out: %w", model, err)
	case stderrors.As(err, &netErr) && netErr.Timeout():
		err = fmt.Errorf("model %s: request timed out: %w", model, err)
	default:
		err = fmt.Errorf("model %s: request failed: %w", model, err)
	}
	return errors.ProviderError(errors.CodeTransientNetwork, provider, err)
}

// Structured error fields. OpenAI sends error.code and error.type, Gemini
// sends error.status and error.details[].reason.
var (
	openAICodes = map[string]string{
		"invalid_api_key":          errors.CodeAuthError,
		"insufficient_quota":       errors.CodeQuotaExceeded,
		"rate_limit_exceeded":      errors.CodeQuotaExceeded,
		"model_not_found":          errors.CodeModelUnavailable,
		"content_filter":           errors.CodeContentFiltered,
		"content_policy_violation": errors.CodeContentFiltered,
	}
	openAITypes = map[string]string{
		"authentication_error": errors.CodeAuthError,
		"insufficient_quota":   errors.CodeQuotaExceeded,
		"rate_limit_error":     errors.CodeQuotaExceeded,
	}
	geminiStatuses = map[string]string{
		"UNAUTHENTICATED":    errors.CodeAuthError,
		"PERMISSION_DENIED":  errors.CodeAuthError,
		"RESOURCE_EXHAUSTED": errors.CodeQuotaExceeded,
		"NOT_FOUND":          errors.CodeModelUnavailable,
		"UNAVAILABLE":        errors.CodeTransientNetwork,
		"INTERNAL":           errors.CodeTransientNetwork,
		"DEADLINE_EXCEEDED":  errors.CodeTransientNetwork,
	}
	geminiReasons = map[string]string{
		"API_KEY_INVALID":     errors.CodeAuthError,
		"RATE_LIMIT_EXCEEDED": errors.CodeQuotaExceeded,
	}
)

// Free-text fallbacks, matched against the error message only
var (
	authMarkers = []string{
		"invalid api key", "incorrect api key", "api key not valid",
		"invalid authentication", "unauthenticated",
	}
	quotaMarkers = []string{
		"quota", "rate limit", "too many requests",
	}
	safetyMarkers = []string{
		"content_filter", "content management policy", "content_policy",
	}
	modelMarkers = []string{
		"does not exist", "not found for api version", "unknown model",
		"is not supported for generatecontent", "no such model",
	}
)

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// errorBody holds the fields classification reads from a vendor error payload
type errorBody struct {
	code    string
	kind    string
	status  string
	reasons []string
	message string
}

func parseErrorBody(body []byte) errorBody {
	if !gjson.ValidBytes(body) {
		return errorBody{message: string(body)}
	}
	e := gjson.GetBytes(body, "error")
	if !e.IsObject() {
		return errorBody{message: e.String()}
	}
	out := errorBody{
		code:    strings.ToLower(e.Get("code").String()),
		kind:    strings.ToLower(e.Get("type").String()),
		status:  strings.ToUpper(e.Get("status").String()),
		message: e.Get("message").String(),
	}
	for _, r := range e.Get("details.#.reason").Array() {
		out.reasons = append(out.reasons, strings.ToUpper(r.String()))
	}
	return out
}

// structuredCode maps the vendor's machine-readable fields, most specific first
func (b errorBody) structuredCode() (string, bool) {
	for _, r := range b.reasons {
		if code, ok := geminiReasons[r]; ok {
			return code, true
		}
	}
	if code, ok := openAICodes[b.code]; ok {
		return code, true
	}
	if code, ok := openAITypes[b.kind]; ok {
		return code, true
	}
	code, ok := geminiStatuses[b.status]
	return code, ok
}

// classifyHTTP maps a non-2xx response to one insight failure kind
func classifyHTTP(provider, model string, status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody] + "..."
	}
	cause := fmt.Errorf("model %s: http %d: %s", model, status, strings.TrimSpace(snippet))

	parsed := parseErrorBody(body)
	message := strings.ToLower(parsed.message)

	var code string
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = errors.CodeAuthError
	case status == http.StatusTooManyRequests:
		code = errors.CodeQuotaExceeded
	case status == http.StatusNotFound:
		code = errors.CodeModelUnavailable
	}
	if code == "" {
		code, _ = parsed.structuredCode()
	}
	if code == "" {
		switch {
		case containsAny(message, authMarkers):
			code = errors.CodeAuthError
		case containsAny(message, quotaMarkers):
			code = errors.CodeQuotaExceeded
		case containsAny(message, safetyMarkers):
			code = errors.CodeContentFiltered
		case containsAny(message, modelMarkers):
			code = errors.CodeModelUnavailable
		case status >= 500:
			code = errors.CodeTransientNetwork
		default:
			// A request the provider rejects for unknown reasons may still work on another model
			code = errors.CodeModelUnavailable
		}
	}
	return errors.ProviderError(code, provider, cause)
}

// malformed reports a 2xx body that does not carry any completion text
func malformed(provider, model, reason string) error {
	return errors.ProviderError(errors.CodeMalformedInsight, provider, fmt.Errorf("model %s: %s", model, reason))
}

// filtered reports a completion blocked by the provider's safety system
func filtered(provider, model, reason string) error {
	return errors.ProviderError(errors.CodeContentFiltered, provider, fmt.Errorf("model %s: %s", model, reason))
}
