package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/internal/services"
)

// RequestLimiter counts a request against key.
type RequestLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, services.RateLimitInfo, error)
}

// RateLimit caps requests per tenant. It must run after Tenant. When the
// limiter backend fails the request is let through.
func RateLimit(limiter RequestLimiter, cfg *config.RateLimitConfig, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := TenantFromContext(c)
		if tenantID == "" {
			logger.Error("Rate limit middleware called without tenant context")
			c.Next()
			return
		}

		allowed, info, err := limiter.Allow(c.Request.Context(), "tenant:"+tenantID, cfg.Requests, cfg.Window)
		if err != nil {
			logger.WithError(err).WithField("tenant_id", tenantID).Warn("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"tenant_id": tenantID,
				"limit":     info.Limit,
			}).Warn("Rate limit exceeded")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
				"rate_limit": info,
			})
			return
		}

		c.Next()
	}
}
