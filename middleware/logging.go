package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// RequestLogger logs one line per request and every error a handler attached
// with c.Error.
func RequestLogger(logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := []interface{}{
			"msg", "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if a := CurrentAccount(c); a != nil {
			kv = append(kv, "account_id", a.ID)
		}
		if status >= 500 {
			level.Error(logger).Log(kv...)
		} else {
			level.Info(logger).Log(kv...)
		}

		for _, e := range c.Errors {
			level.Error(logger).Log("msg", "request error", "method", c.Request.Method, "path", c.Request.URL.Path, "err", e.Err)
		}
	}
}
