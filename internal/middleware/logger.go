package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mediastore/internal/pkg/logger"
	"mediastore/internal/pkg/response"
)

// RequestLogger logs every request by status class and recovers from panics.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Error("panic recovered",
					append(requestFields(c, start), "error", fmt.Sprintf("%v", recovered), "stack", string(debug.Stack()))...)
				if !c.Writer.Written() {
					response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
				}
				c.Abort()
				return
			}

			fields := requestFields(c, start)
			for _, err := range c.Errors {
				fields = append(fields, "error", err.Error())
			}
			status := c.Writer.Status()
			switch {
			case status >= 500:
				log.Error("HTTP request", fields...)
			case status >= 400:
				log.Warn("HTTP request", fields...)
			default:
				log.Info("HTTP request", fields...)
			}
		}()

		c.Next()
	}
}

func requestFields(c *gin.Context, start time.Time) []interface{} {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	fields := []interface{}{
		"method", strings.ToUpper(c.Request.Method),
		"path", path,
		"status", c.Writer.Status(),
		"client_ip", c.ClientIP(),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if id := c.GetString(ContextRequestID); id != "" {
		fields = append(fields, "request_id", id)
	}
	if uid := UserID(c); uid != "" {
		fields = append(fields, "user_id", uid)
	}
	return fields
}
