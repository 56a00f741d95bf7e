package middleware

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"qrmenu-api/apperror"
	"qrmenu-api/metrics"
	"qrmenu-api/ratelimit"
	"qrmenu-api/response"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// KeyFunc picks the rate-limit key for a request. An empty key skips the limiter.
type KeyFunc func(c *gin.Context) string

// ClientIP keys requests by the caller's address.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// Throttle counts one request for key against l. When the limit is exceeded it
// writes the 429 response, aborts and returns false. Store failures are logged
// and let the request through.
func Throttle(c *gin.Context, l *ratelimit.Limiter, key string, logger log.Logger) bool {
	if key == "" {
		return true
	}
	res, err := l.Check(c.Request.Context(), key)
	if err != nil {
		level.Warn(logger).Log("msg", "rate limit store unavailable", "limiter", l.Name, "err", err)
		return true
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(l.Max))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.AttemptsLeft))
	if !res.ResetAt.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	}
	if res.Allowed {
		return true
	}

	wait := res.RetryAfter(time.Now())
	c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())))
	metrics.RateLimited.With("limiter", l.Name).Add(1)
	level.Info(logger).Log("msg", "rate limited", "limiter", l.Name, "client_ip", c.ClientIP(), "retry_after", wait)
	response.Abort(c, apperror.RateLimited(retryMessage(wait)))
	return false
}

// RateLimit applies l to every request, keyed by key.
func RateLimit(l *ratelimit.Limiter, key KeyFunc, logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Throttle(c, l, key(c), logger) {
			return
		}
		c.Next()
	}
}

func retryMessage(wait time.Duration) string {
	if wait <= time.Second {
		return "Too many attempts. Try again in 1 second."
	}
	if wait < time.Minute {
		return fmt.Sprintf("Too many attempts. Try again in %d seconds.", int(wait.Seconds()))
	}
	minutes := int(math.Ceil(wait.Minutes()))
	if minutes == 1 {
		return "Too many attempts. Try again in 1 minute."
	}
	return fmt.Sprintf("Too many attempts. Try again in %d minutes.", minutes)
}
