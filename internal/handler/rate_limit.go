package handler

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/session-gateway/internal/dto"
	"github.com/prperemyshlev/session-gateway/internal/service"
	"go.uber.org/zap"
)

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(rateLimiter *service.RateLimiter, limit int, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFunc(c)

		decision, err := rateLimiter.Allow(c.Request.Context(), key)
		if err != nil {
			// Fail open: a Redis hiccup must not block logins
			logger.Warn("Rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(retryAfter))

			c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   "Too Many Requests",
				Message: "Too many attempts, try again in " + decision.RetryAfter.Round(time.Second).String(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// IPBasedKey keys on the client IP as gin resolves it. Forwarding headers only count
// when the peer is a configured trusted proxy.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}

// PathAndIPKey limits each endpoint separately per client
func PathAndIPKey(c *gin.Context) string {
	return c.FullPath() + ":" + IPBasedKey(c)
}
