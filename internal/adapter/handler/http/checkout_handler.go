package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/middleware/auth"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
)

type CheckoutService interface {
	CheckoutCard(ctx context.Context, req *usecase.CardCheckoutRequest) (*usecase.CheckoutResult, error)
	CheckoutWallet(ctx context.Context, req *usecase.WalletCheckoutRequest) (*usecase.CheckoutResult, error)
	CheckoutCrypto(ctx context.Context, req *usecase.CryptoCheckoutRequest) (*usecase.CheckoutResult, error)
	CaptureWallet(ctx context.Context, ownerID, paymentID string) (*usecase.CheckoutResult, error)
}

type CheckoutHandler struct {
	payments CheckoutService
	logger   *zap.Logger
}

func NewCheckoutHandler(payments CheckoutService, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		payments: payments,
		logger:   logger,
	}
}

type CardCheckoutRequest struct {
	PlanID        string `json:"plan_id" validate:"required"`
	PaymentToken  string `json:"payment_token" validate:"required"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	Installments  int    `json:"installments" validate:"gte=0,lte=36"`
}

type WalletCheckoutRequest struct {
	PlanID    string `json:"plan_id" validate:"required"`
	ReturnURL string `json:"return_url" validate:"omitempty,url"`
	CancelURL string `json:"cancel_url" validate:"omitempty,url"`
}

type CryptoCheckoutRequest struct {
	PlanID      string `json:"plan_id" validate:"required"`
	PayCurrency string `json:"pay_currency" validate:"omitempty,alphanum,max=12"`
}

func (h *CheckoutHandler) CheckoutCard(c echo.Context) error {
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}
	var req CardCheckoutRequest
	if err := bindAndValidate(c, &req); err != nil || c.Response().Committed {
		return err
	}

	result, err := h.payments.CheckoutCard(c.Request().Context(), &usecase.CardCheckoutRequest{
		OwnerID:       ownerID,
		PlanID:        req.PlanID,
		PaymentToken:  req.PaymentToken,
		CustomerEmail: req.CustomerEmail,
		Installments:  req.Installments,
	})
	if err != nil {
		return respondError(c, h.logger, err, "Card checkout failed")
	}

	h.logger.Info("Card checkout",
		zap.String("owner_id", ownerID),
		zap.String("payment_id", result.PaymentID),
		zap.String("status", string(result.Status)))
	return c.JSON(checkoutStatus(result), result)
}

func (h *CheckoutHandler) CheckoutWallet(c echo.Context) error {
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}
	var req WalletCheckoutRequest
	if err := bindAndValidate(c, &req); err != nil || c.Response().Committed {
		return err
	}

	result, err := h.payments.CheckoutWallet(c.Request().Context(), &usecase.WalletCheckoutRequest{
		OwnerID:   ownerID,
		PlanID:    req.PlanID,
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
	})
	if err != nil {
		return respondError(c, h.logger, err, "Wallet checkout failed")
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *CheckoutHandler) CheckoutCrypto(c echo.Context) error {
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}
	var req CryptoCheckoutRequest
	if err := bindAndValidate(c, &req); err != nil || c.Response().Committed {
		return err
	}

	result, err := h.payments.CheckoutCrypto(c.Request().Context(), &usecase.CryptoCheckoutRequest{
		OwnerID:     ownerID,
		PlanID:      req.PlanID,
		PayCurrency: req.PayCurrency,
	})
	if err != nil {
		return respondError(c, h.logger, err, "Crypto checkout failed")
	}
	return c.JSON(http.StatusCreated, result)
}

// CaptureWallet is called when the customer returns from the wallet site
func (h *CheckoutHandler) CaptureWallet(c echo.Context) error {
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	result, err := h.payments.CaptureWallet(c.Request().Context(), ownerID, c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, err, "Wallet capture failed")
	}
	return c.JSON(checkoutStatus(result), result)
}

func checkoutStatus(result *usecase.CheckoutResult) int {
	if result.Status == model.PaymentStatusCompleted {
		return http.StatusOK
	}
	return http.StatusAccepted
}
