package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		paymentTransitions,
		webhookEvents,
		lateCompletions,
		amountMismatches,
		fulfillmentRetries,
		providerCalls,
	)
}

var (
	paymentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_transitions_total",
			Help: "Ledger transitions by provider and target status. first=false means the row was already there.",
		},
		[]string{"provider", "status", "first"},
	)

	webhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Inbound webhooks and IPNs by provider and outcome (rejected/ignored/processed/failed).",
		},
		[]string{"provider", "outcome"},
	)

	lateCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_late_completion_total",
			Help: "Completed events received for payments already marked failed.",
		},
		[]string{"provider"},
	)

	amountMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_amount_mismatch_total",
			Help: "Completed events whose amount or currency differs from the ledger row.",
		},
		[]string{"provider"},
	)

	fulfillmentRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_fulfillment_retries_total",
			Help: "Fulfillment retries from the failed event log by outcome (recovered/failed/skipped).",
		},
		[]string{"outcome"},
	)

	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_provider_calls_total",
			Help: "Outbound processor calls by gateway, operation and result class.",
		},
		[]string{"gateway", "op", "result"},
	)
)

func PaymentTransition(provider, status string, first bool) {
	paymentTransitions.WithLabelValues(norm(provider), norm(status), strconv.FormatBool(first)).Inc()
}

func WebhookEvent(provider, outcome string) {
	webhookEvents.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

// LateCompletion counts the alert condition of money arriving after failure.
func LateCompletion(provider string) {
	lateCompletions.WithLabelValues(norm(provider)).Inc()
}

func AmountMismatch(provider string) {
	amountMismatches.WithLabelValues(norm(provider)).Inc()
}

func FulfillmentRetry(outcome string) {
	fulfillmentRetries.WithLabelValues(norm(outcome)).Inc()
}

func ProviderCall(gateway, op, result string) {
	providerCalls.WithLabelValues(norm(gateway), norm(op), norm(result)).Inc()
}
