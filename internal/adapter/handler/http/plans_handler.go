package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/repository"
)

type PlansHandler struct {
	planRepo repository.PlanRepository
	logger   *zap.Logger
}

func NewPlansHandler(planRepo repository.PlanRepository, logger *zap.Logger) *PlansHandler {
	return &PlansHandler{planRepo: planRepo, logger: logger}
}

func (h *PlansHandler) GetPlans(c echo.Context) error {
	plans, err := h.planRepo.ListActive(c.Request().Context())
	if err != nil {
		return respondError(c, h.logger, err, "Failed to list plans")
	}

	h.logger.Debug("Listed plans", zap.Int("count", len(plans)))
	return c.JSON(http.StatusOK, echo.Map{
		"plans": plans,
		"count": len(plans),
	})
}
