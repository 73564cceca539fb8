package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/pkg/models"
)

const (
	TenantHeader     = "X-Tenant-ID"
	tenantContextKey = "tenant_id"
	userContextKey   = "token_user_id"
)

// TokenValidator validates bearer tokens carrying a tenant claim.
type TokenValidator interface {
	Enabled() bool
	ValidateToken(tokenString string) (*models.TenantClaims, error)
}

// Tenant resolves the calling tenant. With token validation enabled the
// tenant comes from a bearer token; otherwise from the X-Tenant-ID header.
func Tenant(tokens TokenValidator, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokens != nil && tokens.Enabled() {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				abortUnauthorized(c, "MISSING_AUTHORIZATION", "Authorization header is required")
				return
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				abortUnauthorized(c, "INVALID_AUTHORIZATION_FORMAT", "Authorization header must be in format 'Bearer <token>'")
				return
			}

			claims, err := tokens.ValidateToken(tokenParts[1])
			if err != nil {
				logger.WithError(err).Warn("Invalid JWT token")
				abortUnauthorized(c, "INVALID_TOKEN", "Invalid or expired token")
				return
			}

			c.Set(tenantContextKey, claims.TenantID)
			if claims.UserID != "" {
				c.Set(userContextKey, claims.UserID)
			}
			c.Next()
			return
		}

		tenantID := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenantID == "" {
			abortUnauthorized(c, "MISSING_TENANT", "X-Tenant-ID header is required")
			return
		}

		c.Set(tenantContextKey, tenantID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// TenantFromContext returns the tenant set by Tenant.
func TenantFromContext(c *gin.Context) string {
	return c.GetString(tenantContextKey)
}

// TokenUserFromContext returns the user id carried on the bearer token, if any.
func TokenUserFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString(userContextKey)
	return userID, userID != ""
}
