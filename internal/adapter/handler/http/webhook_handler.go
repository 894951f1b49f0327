package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/usecase"
)

// maxWebhookBody caps what a provider may post to us
const maxWebhookBody = 1 << 20

type EventIngester interface {
	Ingest(ctx context.Context, event *provider.PaymentEvent) (*usecase.ApplyResult, error)
}

type WalletCapturer interface {
	CaptureWalletOrder(ctx context.Context, orderID, paymentID string) (*usecase.ApplyResult, error)
}

type webhookParser func(ctx context.Context, body []byte, header http.Header) (*provider.PaymentEvent, error)

// WebhookHandler authenticates provider callbacks and feeds them to the
// ingestion service. Any 2xx tells the provider to stop redelivering.
type WebhookHandler struct {
	ingester EventIngester
	capturer WalletCapturer
	cards    usecase.CardGateways
	wallet   provider.WalletGateway
	crypto   provider.CryptoGateway
	logger   *zap.Logger
}

func NewWebhookHandler(
	ingester EventIngester,
	capturer WalletCapturer,
	cards usecase.CardGateways,
	wallet provider.WalletGateway,
	cryptoGateway provider.CryptoGateway,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		ingester: ingester,
		capturer: capturer,
		cards:    cards,
		wallet:   wallet,
		crypto:   cryptoGateway,
		logger:   logger,
	}
}

// HandleCard receives events for a card backend. The gateway name comes
// from the route so every configured backend gets its own endpoint.
func (h *WebhookHandler) HandleCard(gateway string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.cards == nil {
			return respondError(c, h.logger, domainErrors.ErrProviderNotConfigured, "Card webhook without card gateways")
		}
		g, err := h.cards.GatewayFromString(gateway)
		if err != nil {
			h.logger.Warn("Card webhook for unconfigured gateway",
				zap.String("gateway", gateway),
				zap.Error(err))
			return respondError(c, h.logger, domainErrors.ErrProviderNotConfigured, "Card webhook rejected")
		}
		return h.handle(c, g.Name(), g.ParseWebhook)
	}
}

func (h *WebhookHandler) HandleWallet(c echo.Context) error {
	if h.wallet == nil {
		return respondError(c, h.logger, domainErrors.ErrProviderNotConfigured, "Wallet webhook rejected")
	}
	return h.handle(c, h.wallet.Name(), h.wallet.ParseWebhook)
}

func (h *WebhookHandler) HandleCrypto(c echo.Context) error {
	if h.crypto == nil {
		return respondError(c, h.logger, domainErrors.ErrProviderNotConfigured, "Crypto IPN rejected")
	}
	return h.handle(c, h.crypto.Name(), h.crypto.ParseIPN)
}

func (h *WebhookHandler) handle(c echo.Context, gateway string, parse webhookParser) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("Error reading request body", zap.String("gateway", gateway), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Error reading request body"})
	}

	event, err := parse(ctx, body, c.Request().Header)
	if err != nil {
		var authErr *domainErrors.AuthenticationError
		if errors.As(err, &authErr) {
			h.logger.Warn("Webhook authentication failed",
				zap.String("gateway", gateway),
				zap.String("reason", authErr.Reason))
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
		}
		h.logger.Warn("Malformed webhook", zap.String("gateway", gateway), zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed event"})
	}
	if event == nil {
		h.logger.Debug("Ignoring webhook event type", zap.String("gateway", gateway))
		return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
	}

	h.logger.Info("Webhook event received",
		zap.String("gateway", gateway),
		zap.String("event_id", event.EventID),
		zap.String("external_ref", event.ExternalRef),
		zap.String("status", event.RawStatus))

	result, err := h.ingester.Ingest(ctx, event)
	if errors.Is(err, domainErrors.ErrAmountMismatch) {
		// redelivery cannot change the amount; the event log keeps it for review
		return c.JSON(http.StatusOK, echo.Map{"status": "rejected"})
	}
	if err != nil {
		return respondError(c, h.logger, err, "Failed to apply webhook event")
	}

	if event.Provider == model.ProviderWallet && event.Status == model.PaymentStatusPending &&
		event.RawStatus == "APPROVED" && h.capturer != nil {
		captured, err := h.capturer.CaptureWalletOrder(ctx, event.ExternalRef, event.Reference)
		if err != nil {
			// the client return path or reconciler will capture later
			h.logger.Warn("Capture after wallet approval failed",
				zap.String("order_id", event.ExternalRef),
				zap.Error(err))
		} else {
			result = captured
		}
	}

	resp := echo.Map{"status": "ok"}
	if result != nil {
		resp["payment_status"] = result.Status
	}
	return c.JSON(http.StatusOK, resp)
}
