package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
)

// Event types handled by the wallet webhook. Others are acknowledged and
// ignored.
const (
	EventOrderApproved   = "CHECKOUT.ORDER.APPROVED"
	EventCaptureComplete = "PAYMENT.CAPTURE.COMPLETED"
	EventCapturePending  = "PAYMENT.CAPTURE.PENDING"
	EventCaptureDenied   = "PAYMENT.CAPTURE.DENIED"
	EventCaptureDeclined = "PAYMENT.CAPTURE.DECLINED"
)

type webhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     json.RawMessage `json:"resource"`
}

type captureResource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CustomID          string `json:"custom_id"`
	Amount            money  `json:"amount"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

// ParseWebhook asks the processor to verify the transmission, then
// normalizes order and capture events. The ledger reference is the order id.
func (g *Gateway) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*provider.PaymentEvent, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, domainErrors.NewAuthenticationError(GatewayName, "malformed event")
	}

	if err := g.verify(ctx, raw, header); err != nil {
		return nil, err
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, domainErrors.NewAuthenticationError(GatewayName, "malformed event")
	}

	switch event.EventType {
	case EventOrderApproved:
		var o order
		if err := json.Unmarshal(event.Resource, &o); err != nil {
			return nil, err
		}
		out := orderEvent(&o)
		out.EventID = event.ID
		out.Status = model.PaymentStatusPending
		out.RawStatus = "APPROVED"
		return out, nil

	case EventCaptureComplete, EventCapturePending, EventCaptureDenied, EventCaptureDeclined:
		var c captureResource
		if err := json.Unmarshal(event.Resource, &c); err != nil {
			return nil, err
		}
		amount, _ := decimal.NewFromString(c.Amount.Value)
		out := &provider.PaymentEvent{
			Provider:    model.ProviderWallet,
			Gateway:     GatewayName,
			EventID:     event.ID,
			ExternalRef: c.SupplementaryData.RelatedIDs.OrderID,
			Reference:   c.CustomID,
			Status:      mapCaptureStatus(c.Status),
			RawStatus:   c.Status,
			Amount:      amount,
			Currency:    c.Amount.CurrencyCode,
		}
		if out.Status == model.PaymentStatusFailed {
			out.Reason = strings.ToLower(c.Status)
		}
		return out, nil
	}

	return nil, nil
}

func (g *Gateway) verify(ctx context.Context, event json.RawMessage, header http.Header) error {
	required := []string{
		"Paypal-Transmission-Id",
		"Paypal-Transmission-Time",
		"Paypal-Transmission-Sig",
		"Paypal-Cert-Url",
		"Paypal-Auth-Algo",
	}
	for _, h := range required {
		if header.Get(h) == "" {
			return domainErrors.NewAuthenticationError(GatewayName, "missing header "+h)
		}
	}

	body := map[string]interface{}{
		"auth_algo":         header.Get("Paypal-Auth-Algo"),
		"cert_url":          header.Get("Paypal-Cert-Url"),
		"transmission_id":   header.Get("Paypal-Transmission-Id"),
		"transmission_sig":  header.Get("Paypal-Transmission-Sig"),
		"transmission_time": header.Get("Paypal-Transmission-Time"),
		"webhook_id":        g.cfg.WebhookID,
		"webhook_event":     event,
	}

	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := g.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", "", body, &out); err != nil {
		g.logger.Warn("Wallet webhook verification call failed", zap.Error(err))
		return domainErrors.NewAuthenticationError(GatewayName, "verification unavailable")
	}
	if out.VerificationStatus != "SUCCESS" {
		return domainErrors.NewAuthenticationError(GatewayName, "verification "+strings.ToLower(out.VerificationStatus))
	}
	return nil
}
