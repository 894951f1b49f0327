package card

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	domainErrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/errors"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/model"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/domain/provider"
	"github.com/CristianHenao-coder/app-Onlyprogram-sub000/internal/infrastructure/signature"
)

const eventTransactionUpdated = "transaction.updated"

type eventEnvelope struct {
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data"`
	Timestamp json.Number            `json:"timestamp"`
	Signature struct {
		Properties []string `json:"properties"`
		Checksum   string   `json:"checksum"`
	} `json:"signature"`
}

// ParseWebhook verifies the event checksum and normalizes the transaction.
// Authenticated events of other types return a nil event.
func (g *Gateway) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*provider.PaymentEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env eventEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, domainErrors.NewAuthenticationError(GatewayName, "malformed event")
	}

	timestamp, err := env.Timestamp.Int64()
	if err != nil {
		return nil, domainErrors.NewAuthenticationError(GatewayName, "missing timestamp")
	}

	checksum := env.Signature.Checksum
	if h := header.Get("X-Event-Checksum"); h != "" {
		checksum = h
	}

	values := make([]string, 0, len(env.Signature.Properties))
	for _, path := range env.Signature.Properties {
		v, ok := lookup(env.Data, path)
		if !ok {
			return nil, domainErrors.NewAuthenticationError(GatewayName, "signed property missing: "+path)
		}
		values = append(values, v)
	}

	if !signature.VerifyEventChecksum(checksum, values, timestamp, g.cfg.EventsSecret) {
		return nil, domainErrors.NewAuthenticationError(GatewayName, "checksum mismatch")
	}

	if env.Event != eventTransactionUpdated {
		g.logger.Debug("Ignoring card event")
		return nil, nil
	}

	tx, _ := env.Data["transaction"].(map[string]interface{})
	id, _ := tx["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("card event without transaction id")
	}
	status, _ := tx["status"].(string)
	reference, _ := tx["reference"].(string)
	currency, _ := tx["currency"].(string)
	statusMessage, _ := tx["status_message"].(string)

	amount := decimal.Zero
	if n, ok := tx["amount_in_cents"].(json.Number); ok {
		if cents, err := decimal.NewFromString(n.String()); err == nil {
			amount = cents.Shift(-2)
		}
	}

	event := &provider.PaymentEvent{
		Provider:    model.ProviderCard,
		Gateway:     GatewayName,
		EventID:     fmt.Sprintf("%s:%s:%d", id, status, timestamp),
		ExternalRef: id,
		Reference:   reference,
		Status:      mapStatus(status),
		RawStatus:   status,
		Amount:      amount,
		Currency:    currency,
		Payload:     tx,
	}
	if event.Status == model.PaymentStatusFailed {
		event.Reason = statusMessage
		if event.Reason == "" {
			event.Reason = strings.ToLower(status)
		}
	}
	return event, nil
}

// lookup resolves a dotted path such as "transaction.amount_in_cents" and
// renders the value as the processor does when signing.
func lookup(data map[string]interface{}, path string) (string, bool) {
	var cur interface{} = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		if cur, ok = m[part]; !ok {
			return "", false
		}
	}

	switch v := cur.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case nil:
		return "", true
	default:
		return "", false
	}
}
