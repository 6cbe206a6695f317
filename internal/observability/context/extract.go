package context

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ClientKeyFromGin returns the key used for per-client budgets: the client
// address recorded by the request middleware, else gin's own resolution.
// An empty key means the caller could not be identified.
func ClientKeyFromGin(c *gin.Context) string {
	if c == nil || c.Request == nil {
		return ""
	}
	if value := ClientIPFromContext(c.Request.Context()); value != "" {
		return value
	}
	return strings.TrimSpace(c.ClientIP())
}
