// Package middleware holds the gin middleware shared by the HTTP services.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	CorrelationIDKey    = "correlation_id"
)

// maxCorrelationIDLen bounds client supplied ids before they reach logs and
// message headers.
const maxCorrelationIDLen = 128

// CorrelationID is a Gin middleware that extracts or generates a correlation
// ID and echoes it in the response.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" || len(correlationID) > maxCorrelationIDLen {
			correlationID = uuid.New().String()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		c.Next()
	}
}

// GetCorrelationID retrieves the correlation ID from the Gin context. Without
// the middleware a fresh id is generated and remembered for the rest of the
// request.
func GetCorrelationID(c *gin.Context) string {
	if id := c.GetString(CorrelationIDKey); id != "" {
		return id
	}
	id := uuid.New().String()
	c.Set(CorrelationIDKey, id)
	return id
}
