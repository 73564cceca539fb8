package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/middleware"
	"github.com/temcen/shoprec/pkg/models"
)

type RecommendationHandler struct {
	engine Engine
	logger *logrus.Logger
	now    func() time.Time
}

func NewRecommendationHandler(engine Engine, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

func (h *RecommendationHandler) respond(c *gin.Context, userID string, recs []models.Recommendation) {
	c.JSON(http.StatusOK, models.RecommendationResponse{
		TenantID:        middleware.TenantFromContext(c),
		UserID:          userID,
		Recommendations: recs,
		Count:           len(recs),
		GeneratedAt:     h.now().UTC(),
	})
}

func (h *RecommendationHandler) Personalized(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	userID := c.Param("userId")
	recs, err := h.engine.GetPersonalized(c.Request.Context(), middleware.TenantFromContext(c), userID, limit)
	if err != nil {
		respondEngineError(c, h.logger, err, "RECOMMENDATION_GENERATION_FAILED")
		return
	}

	h.respond(c, userID, recs)
}

func (h *RecommendationHandler) Trending(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	recs, err := h.engine.GetTrending(c.Request.Context(), middleware.TenantFromContext(c), limit)
	if err != nil {
		respondEngineError(c, h.logger, err, "RECOMMENDATION_GENERATION_FAILED")
		return
	}

	h.respond(c, "", recs)
}

// Seasonal accepts a season name or "current".
func (h *RecommendationHandler) Seasonal(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	season := c.Param("season")
	if strings.EqualFold(season, "current") {
		season = string(models.CurrentSeason(h.now()))
	}

	recs, err := h.engine.GetSeasonal(c.Request.Context(), middleware.TenantFromContext(c), season, limit)
	if err != nil {
		respondEngineError(c, h.logger, err, "RECOMMENDATION_GENERATION_FAILED")
		return
	}

	h.respond(c, "", recs)
}

func (h *RecommendationHandler) Similar(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	recs, err := h.engine.GetSimilarTo(c.Request.Context(), middleware.TenantFromContext(c), c.Param("productId"), limit)
	if err != nil {
		respondEngineError(c, h.logger, err, "RECOMMENDATION_GENERATION_FAILED")
		return
	}

	h.respond(c, "", recs)
}

func (h *RecommendationHandler) Preferences(c *gin.Context) {
	analytics, err := h.engine.GetUserPreferenceAnalytics(c.Request.Context(), middleware.TenantFromContext(c), c.Param("userId"))
	if err != nil {
		respondEngineError(c, h.logger, err, "ANALYTICS_FAILED")
		return
	}

	c.JSON(http.StatusOK, analytics)
}
