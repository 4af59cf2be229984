package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context, keeping the inner code
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error chain contains an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the outermost AppError code in the chain, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether err carries the given code
func HasCode(err error, code string) bool {
	return err != nil && GetCode(err) == code
}

// Predefined error codes
const (
	CodeConfigInvalid    = "CONFIG_INVALID"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeParseError       = "PARSE_ERROR"
	CodeStorageError     = "STORAGE_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeNotProcessedYet  = "NOT_PROCESSED_YET"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeNoProvider       = "NO_PROVIDER_CONFIGURED"
	CodeAuthError        = "AUTH_ERROR"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeContentFiltered  = "CONTENT_FILTERED"
	CodeTransientNetwork = "TRANSIENT_NETWORK_ERROR"
	CodeModelUnavailable = "MODEL_UNAVAILABLE"
	CodeMalformedInsight = "MALFORMED_INSIGHT_RESPONSE"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func ValidationError(message string) *AppError {
	return New(CodeValidationError, message)
}

func ParseError(message string, cause error) *AppError {
	return &AppError{Code: CodeParseError, Message: message, Cause: cause}
}

func StorageError(message string, cause error) *AppError {
	return &AppError{Code: CodeStorageError, Message: message, Cause: cause}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message)
}

func NotProcessedYet(message string) *AppError {
	return New(CodeNotProcessedYet, message)
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func NoProviderConfigured() *AppError {
	return New(CodeNoProvider, "no insight provider is configured")
}

// ProviderError builds one of the insight failure kinds for a named provider
func ProviderError(code, provider string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf("%s provider error", provider),
		Cause:   cause,
	}
}

// IsProviderError reports whether the code belongs to the insight failure family
func IsProviderError(code string) bool {
	switch code {
	case CodeNoProvider, CodeAuthError, CodeQuotaExceeded, CodeContentFiltered,
		CodeTransientNetwork, CodeModelUnavailable, CodeMalformedInsight:
		return true
	}
	return false
}

var userMessages = map[string]string{
	CodeValidationError:  "The uploaded file was rejected.",
	CodeParseError:       "The file could not be read as a spreadsheet.",
	CodeStorageError:     "The file could not be stored. Please try again.",
	CodeNotFound:         "The requested file was not found.",
	CodeConflict:         "The file is still being processed.",
	CodeNotProcessedYet:  "The file has not finished processing yet.",
	CodeNoProvider:       "AI analysis is not configured. Set OPENAI_API_KEY or GEMINI_API_KEY.",
	CodeAuthError:        "The AI provider rejected the API key. Check your configuration.",
	CodeQuotaExceeded:    "The AI provider quota has been exceeded. Try again later.",
	CodeContentFiltered:  "The AI provider blocked the request for safety reasons.",
	CodeTransientNetwork: "The AI provider could not be reached. Try again later.",
	CodeModelUnavailable: "None of the configured AI models are available.",
	CodeMalformedInsight: "The AI provider returned an unreadable analysis.",
	CodeConfigInvalid:    "The service is misconfigured.",
}

// UserMessage returns a stable human-readable message for err's code
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	code := GetCode(err)
	if msg, ok := userMessages[code]; ok {
		if code == CodeValidationError || code == CodeParseError {
			var appErr *AppError
			stderrors.As(err, &appErr)
			return appErr.Message
		}
		return msg
	}
	return "An unexpected error occurred."
}
