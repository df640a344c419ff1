package middleware

import (
	"context"

	"github.com/Lunnius/Npstest/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
	requestIDKey    = "request_id"
	processCodeKey  = "process_code"
)

// RequestID tags every request with an id, reusing a sane incoming
// X-Request-ID, and puts it in the request context for the logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check if request ID already exists in header
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.New().String()
		}

		// Set request ID in response header
		c.Header(requestIDHeader, requestID)

		// Store in gin context
		c.Set(requestIDKey, requestID)

		// Add to request context for logger
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetRequestID gets the request ID from gin context
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// SetProcessCode records the process a request works on, for the access log
// and for every record logged through the request context.
func SetProcessCode(c *gin.Context, code string) {
	if code == "" {
		return
	}
	c.Set(processCodeKey, code)
	c.Request = c.Request.WithContext(logger.WithProcessCode(c.Request.Context(), code))
}

// GetProcessCode returns the code set by SetProcessCode
func GetProcessCode(c *gin.Context) string {
	return c.GetString(processCodeKey)
}
