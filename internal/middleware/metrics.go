package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"chat_rooms/internal/metrics"
)

// Metrics пишет HTTP-метрики. Путь берется из шаблона маршрута,
// чтобы id комнат не раздували кардинальность.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method, path,
		).Observe(time.Since(start).Seconds())
	}
}
