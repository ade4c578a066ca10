package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/logging"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"

	codeRateLimited = "RATE_LIMITED"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		kv := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDKey),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", kv...)
			return
		}
		logger.Debug("request", kv...)
	}
}

func rateLimit(l *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "too many requests",
				Code:  codeRateLimited,
			})
			return
		}
		c.Next()
	}
}

// statusFor maps an error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeValidation:
		return http.StatusBadRequest
	case errors.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an ErrorResponse. Internal failures are logged and
// reported without detail.
func fail(c *gin.Context, logger *logging.Logger, err error) {
	code := errors.Code(err)
	status := statusFor(code)
	msg := err.Error()
	if code == errors.CodeInternal {
		logger.Error("handler error", "error", err, "request_id", c.GetString(requestIDKey))
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}
