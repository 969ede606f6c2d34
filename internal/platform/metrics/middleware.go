package metrics

import (
	"github.com/gin-gonic/gin"
)

// RequestMiddleware returns gin middleware that counts requests.
func RequestMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		m.IncRequests()
	}
}
