package middleware

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger writes one line per request: request id, verb, path, status,
// latency, caller, and the scaled cost charged for metered calls.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		line := fmt.Sprintf("[%s] %s %s - %d - %v - %s",
			c.GetString("request_id"),
			c.Request.Method,
			path,
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
		)
		if units, ok := c.Get("cost_units"); ok {
			line = fmt.Sprintf("%s - %du", line, units)
		}

		log.Print(line)
	}
}
