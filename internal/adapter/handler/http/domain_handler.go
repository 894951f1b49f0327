package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/registrar"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/middleware/auth"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
	apperrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/errors"
)

type DomainPurchaser interface {
	NormalizeDomain(domain string) (string, error)
	CheckAvailability(ctx context.Context, domain string) (*registrar.Availability, error)
	Purchase(ctx context.Context, req *usecase.DomainPurchaseRequest) (*usecase.DomainPurchase, error)
}

type DomainHandler struct {
	saga   DomainPurchaser
	logger *zap.Logger
}

func NewDomainHandler(saga DomainPurchaser, logger *zap.Logger) *DomainHandler {
	return &DomainHandler{saga: saga, logger: logger}
}

type DomainPurchaseRequest struct {
	ResourceID    string `json:"resource_id" validate:"required"`
	Domain        string `json:"domain" validate:"required"`
	PaymentToken  string `json:"payment_token" validate:"required"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
}

func (h *DomainHandler) Availability(c echo.Context) error {
	domain, err := h.saga.NormalizeDomain(c.QueryParam("domain"))
	if err != nil {
		return respondError(c, h.logger, invalidDomain(err), "Invalid domain")
	}

	availability, err := h.saga.CheckAvailability(c.Request().Context(), domain)
	if err != nil {
		return respondError(c, h.logger, err, "Domain availability lookup failed")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"domain":    availability.Domain,
		"available": availability.Available,
		"premium":   availability.Premium,
		"price":     availability.Price,
		"currency":  availability.Currency,
	})
}

// Purchase runs the saga. The step report is returned even when a step
// failed after the charge, so the client can show the payment id.
func (h *DomainHandler) Purchase(c echo.Context) error {
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}
	var req DomainPurchaseRequest
	if err := bindAndValidate(c, &req); err != nil || c.Response().Committed {
		return err
	}
	if _, err := h.saga.NormalizeDomain(req.Domain); err != nil {
		return respondError(c, h.logger, invalidDomain(err), "Invalid domain")
	}

	purchase, err := h.saga.Purchase(c.Request().Context(), &usecase.DomainPurchaseRequest{
		OwnerID:       ownerID,
		ResourceID:    req.ResourceID,
		Domain:        req.Domain,
		PaymentToken:  req.PaymentToken,
		CustomerEmail: req.CustomerEmail,
	})
	if err == nil {
		return c.JSON(http.StatusCreated, purchase)
	}

	var partial *domainErrors.PartialFulfillmentError
	if purchase != nil && (errors.As(err, &partial) || errors.Is(err, domainErrors.ErrPaymentPending)) {
		status := http.StatusAccepted
		if partial != nil {
			status = http.StatusBadGateway
		}
		h.logger.Warn("Domain purchase stopped after charge",
			zap.String("domain", purchase.Domain),
			zap.String("payment_id", purchase.PaymentID),
			zap.String("cursor", string(purchase.Cursor)),
			zap.Error(err))
		return c.JSON(status, echo.Map{
			"error":    stepError(purchase),
			"purchase": purchase,
		})
	}
	return respondError(c, h.logger, err, "Domain purchase failed")
}

func invalidDomain(err error) error {
	return apperrors.NewAppError(apperrors.ErrInvalidArgument, "invalid domain", err)
}

func stepError(purchase *usecase.DomainPurchase) string {
	for _, step := range purchase.Steps {
		if step.Outcome == usecase.StepFailed {
			return step.Error
		}
	}
	return "domain purchase incomplete"
}
