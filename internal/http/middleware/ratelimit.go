package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/collectit/marketplace/internal/ratelimit"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RateLimit consumes one unit of the caller's budget for action. It must run after UserAuth.
func RateLimit(limiter *ratelimit.Manager, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		decision, result, errCheck := limiter.Check(c.Request.Context(), UserID(c), Roles(c), action)
		if errCheck != nil {
			log.WithError(errCheck).WithField("action", action).Warn("rate limit check failed")
			c.Next()
			return
		}
		if decision.Limit <= 0 {
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(time.Until(result.Reset).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded", "kind": "rate_limited"})
			return
		}
		c.Next()
	}
}
