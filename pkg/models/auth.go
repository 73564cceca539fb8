package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TenantClaims are the claims the API expects on bearer tokens issued by
// the surrounding application.
type TenantClaims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}
