package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat_rooms/pkg/errors"
	"chat_rooms/pkg/logger"
)

// ErrorHandler отдает последнюю ошибку из c.Errors в виде {"error": "..."}.
// Ошибки хранилища логируются, клиенту уходит только общий текст.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		statusCode := errors.HTTPStatusFromError(err)

		if statusCode >= http.StatusInternalServerError {
			log.Error("Request failed", "error", err, "method", c.Request.Method, "path", c.FullPath())
		}

		c.JSON(statusCode, gin.H{
			"error": errors.PublicMessage(err),
		})
	}
}
