package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/services"
)

type HealthChecker interface {
	CheckHealth(ctx context.Context) *services.HealthStatus
}

type HealthHandler struct {
	logger        *logrus.Logger
	healthService HealthChecker
}

func NewHealthHandler(logger *logrus.Logger, healthService HealthChecker) *HealthHandler {
	return &HealthHandler{
		logger:        logger,
		healthService: healthService,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := h.healthService.CheckHealth(ctx)

	// Degraded still serves recommendations, so load balancers keep it.
	httpStatus := http.StatusOK
	switch status.Status {
	case "healthy":
	case "degraded":
		h.logger.WithField("failures", status.NonCritical).Warn("Recommendation service degraded")
	case "unhealthy":
		httpStatus = http.StatusServiceUnavailable
	default:
		httpStatus = http.StatusInternalServerError
	}

	c.Header("Cache-Control", "no-store")
	c.JSON(httpStatus, status)
}
