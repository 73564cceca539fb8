package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/shoprec/internal/middleware"
	"github.com/temcen/shoprec/pkg/models"
)

type BehaviorHandler struct {
	engine    Engine
	logger    *logrus.Logger
	validator *validator.Validate
}

func NewBehaviorHandler(engine Engine, logger *logrus.Logger) *BehaviorHandler {
	return &BehaviorHandler{
		engine:    engine,
		logger:    logger,
		validator: validator.New(),
	}
}

// Track records one behaviour event. The write may complete after the
// response is sent.
func (h *BehaviorHandler) Track(c *gin.Context) {
	var req models.TrackBehaviorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format")
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	if tokenUser, ok := middleware.TokenUserFromContext(c); ok && tokenUser != req.UserID {
		respondError(c, http.StatusForbidden, "USER_MISMATCH", "user_id does not match the authenticated user")
		return
	}

	tenantID := middleware.TenantFromContext(c)
	if err := h.engine.TrackBehavior(c.Request.Context(), tenantID, req.UserID, req.Action, req.ProductID, req.Metadata); err != nil {
		respondEngineError(c, h.logger, err, "TRACKING_FAILED")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
	})
}
