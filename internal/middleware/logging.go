package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggingMiddleware 访问日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		log.Printf("[%s] %s %s %s | Status: %d | Size: %d | Latency: %v",
			GetRequestID(c),
			c.Request.Method,
			path,
			query,
			c.Writer.Status(),
			c.Writer.Size(),
			time.Since(start),
		)
	}
}
