package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/services"
	"github.com/temcen/shoprec/pkg/models"
)

const defaultLimit = 10

// Engine is the recommendation surface the HTTP layer depends on.
type Engine interface {
	GetPersonalized(ctx context.Context, tenantID, userID string, limit int) ([]models.Recommendation, error)
	GetTrending(ctx context.Context, tenantID string, limit int) ([]models.Recommendation, error)
	GetSeasonal(ctx context.Context, tenantID, season string, limit int) ([]models.Recommendation, error)
	GetSimilarTo(ctx context.Context, tenantID, productID string, limit int) ([]models.Recommendation, error)
	TrackBehavior(ctx context.Context, tenantID, userID, action, productID string, metadata map[string]interface{}) error
	GetUserPreferenceAnalytics(ctx context.Context, tenantID, userID string) (*models.PreferenceAnalytics, error)
}

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Behavior       *BehaviorHandler
}

func New(logger *logrus.Logger, svc *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, svc.Health),
		Recommendation: NewRecommendationHandler(svc.Engine, logger),
		Behavior:       NewBehaviorHandler(svc.Engine, logger),
	}
}

func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be an integer")
		return 0, false
	}
	return limit, true
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondEngineError maps engine errors: caller mistakes are 400, the rest 500.
func respondEngineError(c *gin.Context, logger *logrus.Logger, err error, fallbackCode string) {
	switch {
	case errors.Is(err, services.ErrInvalidAction):
		respondError(c, http.StatusBadRequest, "INVALID_ACTION", err.Error())
	case errors.Is(err, services.ErrInvalidSeason):
		respondError(c, http.StatusBadRequest, "INVALID_SEASON", err.Error())
	case errors.Is(err, services.ErrInvalidLimit):
		respondError(c, http.StatusBadRequest, "INVALID_LIMIT", err.Error())
	case services.IsClientError(err):
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		respondError(c, http.StatusInternalServerError, fallbackCode, "Internal server error")
	}
}
