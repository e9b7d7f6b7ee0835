package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/reelpostly/repostly/internal/pkg/logger"
	"github.com/reelpostly/repostly/internal/pkg/response"
)

// Recovery converts panics into a 500 envelope and a structured log line.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					zap.Any("panic", rec),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.Stack("stack"))
				response.ErrorWithDetails(c, http.StatusInternalServerError, "internal server error", "INTERNAL", nil)
				c.Abort()
			}
		}()
		c.Next()
	}
}
