package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/config"
	"github.com/temcen/shoprec/pkg/models"
)

const tokenIssuer = "shoprec"

// TenantTokenService issues and verifies the bearer tokens that carry the
// tenant context for API calls.
type TenantTokenService struct {
	config    *config.AuthConfig
	logger    *logrus.Logger
	jwtSecret []byte
}

func NewTenantTokenService(cfg *config.AuthConfig, logger *logrus.Logger) *TenantTokenService {
	return &TenantTokenService{
		config:    cfg,
		logger:    logger,
		jwtSecret: []byte(cfg.JWTSecret),
	}
}

// Enabled reports whether a signing secret is configured.
func (s *TenantTokenService) Enabled() bool {
	return len(s.jwtSecret) > 0
}

func (s *TenantTokenService) GenerateToken(tenantID, userID string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("token signing is not configured")
	}
	if strings.TrimSpace(tenantID) == "" {
		return "", fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}

	now := time.Now()
	claims := &models.TenantClaims{
		TenantID: tenantID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func (s *TenantTokenService) ValidateToken(tokenString string) (*models.TenantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TenantClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*models.TenantClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.TenantID == "" {
		return nil, fmt.Errorf("token has no tenant")
	}
	return claims, nil
}
