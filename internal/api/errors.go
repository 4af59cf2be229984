package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sheetlens/internal/errors"
)

// statusFor maps an error code to its HTTP status
func statusFor(code string) int {
	switch code {
	case errors.CodeValidationError:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeNotProcessedYet, errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeNoProvider, errors.CodeAuthError:
		return http.StatusServiceUnavailable
	case errors.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case errors.CodeContentFiltered, errors.CodeTransientNetwork,
		errors.CodeModelUnavailable, errors.CodeMalformedInsight:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the stable user message for err and records err on the context
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": errors.UserMessage(err), "code": code})
}
