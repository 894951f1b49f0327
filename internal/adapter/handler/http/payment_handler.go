package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/middleware/auth"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
)

// paymentResponse is the client view of a ledger row. Token material,
// customer references and processor codes stay server side.
type paymentResponse struct {
	ID             string               `json:"id"`
	Status         model.PaymentStatus  `json:"status"`
	Provider       model.ProviderKind   `json:"provider"`
	Purpose        model.PaymentPurpose `json:"purpose"`
	Amount         string               `json:"amount"`
	Currency       string               `json:"currency"`
	Reference      string               `json:"reference"`
	PlanID         *string              `json:"plan_id,omitempty"`
	SubscriptionID *string              `json:"subscription_id,omitempty"`
	ApprovalURL    string               `json:"approval_url,omitempty"`
	PayAddress     string               `json:"pay_address,omitempty"`
	PayCurrency    string               `json:"pay_currency,omitempty"`
	FailureReason  string               `json:"failure_reason,omitempty"`
	ConfirmedAt    *time.Time           `json:"confirmed_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

func newPaymentResponse(p *model.Payment) *paymentResponse {
	resp := &paymentResponse{
		ID:             p.ID,
		Status:         p.Status,
		Provider:       p.Provider,
		Purpose:        p.Purpose,
		Amount:         p.Amount.StringFixed(2),
		Currency:       p.Currency,
		Reference:      p.ID,
		PlanID:         p.PlanID,
		SubscriptionID: p.SubscriptionID,
		ConfirmedAt:    p.ConfirmedAt,
		CreatedAt:      p.CreatedAt,
	}
	if !p.Status.IsTerminal() {
		resp.ApprovalURL = p.Metadata.String(model.MetaApprovalURL)
		resp.PayAddress = p.Metadata.String(model.MetaPayAddress)
		resp.PayCurrency = p.Metadata.String(model.MetaPayCurrency)
	}
	if p.Status == model.PaymentStatusFailed {
		resp.FailureReason = "payment was not completed"
	}
	return resp
}

type PaymentReader interface {
	GetPayment(ctx context.Context, ownerID, paymentID string) (*model.Payment, error)
}

type PaymentStatusReader interface {
	GetStatus(ctx context.Context, ownerID, paymentID string) (*usecase.PaymentStatusView, error)
}

// PaymentHandler serves read-only payment views. Polling never moves the
// ledger.
type PaymentHandler struct {
	payments PaymentReader
	status   PaymentStatusReader
	logger   *zap.Logger
}

func NewPaymentHandler(payments PaymentReader, status PaymentStatusReader, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		status:   status,
		logger:   logger,
	}
}

func (h *PaymentHandler) GetPayment(c echo.Context) error {
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	payment, err := h.payments.GetPayment(c.Request().Context(), ownerID, c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load payment")
	}
	return c.JSON(http.StatusOK, newPaymentResponse(payment))
}

func (h *PaymentHandler) GetStatus(c echo.Context) error {
	ownerID, err := auth.GetOwnerID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	view, err := h.status.GetStatus(c.Request().Context(), ownerID, c.Param("id"))
	if err != nil {
		return respondError(c, h.logger, err, "Failed to load payment status")
	}
	return c.JSON(http.StatusOK, view)
}
