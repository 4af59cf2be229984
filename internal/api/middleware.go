package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sheetlens/domain/core"
	"sheetlens/domain/upload"
	"sheetlens/internal"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderRequestID = "X-Request-ID"

	actorKey     = "actor"
	requestIDKey = "requestID"

	maxOwnerIDLength = 255
)

// RequestLogger emits one structured entry per request
func RequestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()

		statusCode := c.Writer.Status()
		entry := logger.WithFields(map[string]interface{}{
			"request_id":  requestID,
			"http_method": c.Request.Method,
			"uri":         c.Request.URL.RequestURI(),
			"status_code": statusCode,
			"latency_ms":  time.Since(start).Milliseconds(),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		})

		if len(c.Errors) > 0 {
			entry.WithField("error", c.Errors.String()).Error("Request processing failed")
			return
		}
		switch {
		case statusCode >= 500:
			entry.Error("Request completed with server error")
		case statusCode >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// RequireActor resolves the caller from X-User-ID and X-User-Role
func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := core.ParseOwnerID(c.GetHeader(HeaderUserID))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing " + HeaderUserID + " header", "code": "UNAUTHORIZED"})
			return
		}
		if len(owner) > maxOwnerIDLength {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID", "code": "VALIDATION_ERROR"})
			return
		}

		c.Set(actorKey, upload.Actor{
			OwnerID: owner,
			Admin:   strings.EqualFold(strings.TrimSpace(c.GetHeader(HeaderUserRole)), "admin"),
		})
		c.Next()
	}
}

func actorFrom(c *gin.Context) upload.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(upload.Actor); ok {
			return actor
		}
	}
	return upload.Actor{}
}
