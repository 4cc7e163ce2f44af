package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/irfndi/stock-monitor/internal/logging"
	"github.com/irfndi/stock-monitor/internal/metrics"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	maxRequestIDLen = 128
)

// RequestID reuses the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		AddSpanAttribute(c, "http.request_id", id)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger logs every request and counts it against its route template.
// Either argument may be nil.
func RequestLogger(logger logging.Logger, m *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), status, elapsed)

		if logger == nil || untracedPaths[c.Request.URL.Path] {
			return
		}
		logger.LogAPIRequest(c.Request.Method, c.Request.URL.Path, status, elapsed.Milliseconds())
		if len(c.Errors) > 0 {
			logger.WithRequestID(GetRequestID(c)).Error("request failed",
				"path", c.Request.URL.Path,
				"status", status,
				"error", c.Errors.String(),
			)
		}
	}
}
