package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		resourcesActivated,
		partialFulfillments,
		billingCharges,
		billingRuns,
		sagaSteps,
	)
}

var (
	resourcesActivated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fulfillment_resources_activated_total",
			Help: "Resources flipped to active by completed payments.",
		},
	)

	partialFulfillments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_partial_total",
			Help: "Payments that completed while a downstream step failed, by stage.",
		},
		[]string{"stage"},
	)

	billingCharges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_charges_total",
			Help: "Renewal attempts by outcome (approved/declined/pending/error/skipped).",
		},
		[]string{"outcome"},
	)

	billingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_runs_total",
			Help: "Billing scheduler runs by result (completed/skipped/locked/failed).",
		},
		[]string{"result"},
	)

	sagaSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_saga_steps_total",
			Help: "Domain purchase saga step outcomes.",
		},
		[]string{"step", "outcome"},
	)
)

func ResourcesActivated(n int64) {
	if n > 0 {
		resourcesActivated.Add(float64(n))
	}
}

func PartialFulfillment(stage string) {
	partialFulfillments.WithLabelValues(norm(stage)).Inc()
}

func BillingCharge(outcome string) {
	billingCharges.WithLabelValues(norm(outcome)).Inc()
}

func BillingRun(result string) {
	billingRuns.WithLabelValues(norm(result)).Inc()
}

func SagaStep(step, outcome string) {
	sagaSteps.WithLabelValues(norm(step), norm(outcome)).Inc()
}
