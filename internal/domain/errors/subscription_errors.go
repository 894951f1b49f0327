package errors

import "errors"

var (
	// ErrSubscriptionNotFound indicates that the subscription does not exist or
	// belongs to someone else
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSubscriptionNotPastDue is returned when reactivating a subscription
	// that is still active
	ErrSubscriptionNotPastDue = errors.New("subscription is not past due")

	// ErrPaymentPending indicates the processor has not decided the charge yet
	ErrPaymentPending = errors.New("payment is still pending")

	// ErrProviderNotConfigured is returned when a checkout names a processor
	// this deployment has no credentials for
	ErrProviderNotConfigured = errors.New("payment provider not configured")
)
