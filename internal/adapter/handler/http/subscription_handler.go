package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/middleware/auth"
)

type SubscriptionReactivator interface {
	Reactivate(ctx context.Context, ownerID, subscriptionID string) (*model.Subscription, error)
}

type SubscriptionHandler struct {
	billing SubscriptionReactivator
	logger  *zap.Logger
}

func NewSubscriptionHandler(billing SubscriptionReactivator, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{billing: billing, logger: logger}
}

// Reactivate puts a past_due subscription back into the billing rotation
func (h *SubscriptionHandler) Reactivate(c echo.Context) error {
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	sub, err := h.billing.Reactivate(c.Request().Context(), ownerID, c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to reactivate subscription")
	}

	h.logger.Info("Subscription reactivated",
		zap.String("owner_id", ownerID),
		zap.String("subscription_id", sub.ID))
	return c.JSON(http.StatusOK, sub)
}
