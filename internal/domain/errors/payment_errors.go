package errors

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	apperrors "github.com/CristianHenao-coder/app-Onlyprogram-sub000/pkg/errors"
)

var (
	// ErrPaymentNotFound indicates that no payment matches the id or reference
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrPlanNotFound indicates that the requested plan does not exist or is inactive
	ErrPlanNotFound = errors.New("plan not found")

	// ErrResourceNotFound indicates that the resource does not exist or belongs to someone else
	ErrResourceNotFound = errors.New("resource not found")

	// ErrDomainUnavailable indicates that the registrar will not sell the domain
	ErrDomainUnavailable = errors.New("domain is not available")

	// ErrAmountMismatch indicates that a completion reports a different
	// amount or currency than the payment was created for
	ErrAmountMismatch = errors.New("payment amount mismatch")

	// ErrUnsupportedCurrency indicates a price in a currency the settlement
	// rate does not cover
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// AuthenticationError is returned when an inbound callback cannot be verified.
// Unverifiable and invalid are treated the same.
type AuthenticationError struct {
	Provider string
	Reason   string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s callback authentication failed: %s", e.Provider, e.Reason)
}

func (e *AuthenticationError) Code() string { return apperrors.ErrUnauthenticated }

// NewAuthenticationError creates a new AuthenticationError
func NewAuthenticationError(provider, reason string) *AuthenticationError {
	return &AuthenticationError{Provider: provider, Reason: reason}
}

// ProviderDeclinedError is a business-level payment failure. Message is safe
// to show to the customer; ProviderCode only goes to logs.
type ProviderDeclinedError struct {
	Provider     string
	PaymentID    string
	ProviderCode string
	Message      string
}

func (e *ProviderDeclinedError) Error() string {
	if e.ProviderCode != "" {
		return fmt.Sprintf("%s declined payment %s (%s): %s", e.Provider, e.PaymentID, e.ProviderCode, e.Message)
	}
	return fmt.Sprintf("%s declined payment %s: %s", e.Provider, e.PaymentID, e.Message)
}

func (e *ProviderDeclinedError) Code() string { return apperrors.ErrPaymentDeclined }

// UserMessage returns the terse message shown to customers.
func (e *ProviderDeclinedError) UserMessage() string {
	if e.Message == "" {
		return "payment declined"
	}
	return e.Message
}

// NewProviderDeclinedError creates a new ProviderDeclinedError
func NewProviderDeclinedError(provider, paymentID, providerCode, message string) *ProviderDeclinedError {
	return &ProviderDeclinedError{
		Provider:     provider,
		PaymentID:    paymentID,
		ProviderCode: providerCode,
		Message:      message,
	}
}

// ProviderUnavailableError covers timeouts, 5xx answers and transport errors.
type ProviderUnavailableError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s unavailable: status %d", e.Provider, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s %s unavailable: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

func (e *ProviderUnavailableError) Code() string { return apperrors.ErrUnavailable }

// NewProviderUnavailableError creates a new ProviderUnavailableError
func NewProviderUnavailableError(provider, op string, statusCode int, err error) *ProviderUnavailableError {
	return &ProviderUnavailableError{Provider: provider, Op: op, StatusCode: statusCode, Err: err}
}

// FulfillmentStage names the step that failed after money moved.
type FulfillmentStage string

const (
	StageActivation   FulfillmentStage = "activation"
	StageSubscription FulfillmentStage = "subscription"
	StageRegistration FulfillmentStage = "registration"
	StageBinding      FulfillmentStage = "binding"
)

// PartialFulfillmentError means the payment is completed but a downstream
// step failed. It is logged with the payment id for manual reconciliation.
type PartialFulfillmentError struct {
	PaymentID string
	Stage     FulfillmentStage
	Err       error
}

func (e *PartialFulfillmentError) Error() string {
	return fmt.Sprintf("payment %s completed but %s failed: %v", e.PaymentID, e.Stage, e.Err)
}

func (e *PartialFulfillmentError) Unwrap() error { return e.Err }

func (e *PartialFulfillmentError) Code() string { return apperrors.ErrInconsistent }

// NewPartialFulfillmentError creates a new PartialFulfillmentError
func NewPartialFulfillmentError(paymentID string, stage FulfillmentStage, err error) *PartialFulfillmentError {
	return &PartialFulfillmentError{PaymentID: paymentID, Stage: stage, Err: err}
}

// DomainRegistrationError is returned by the domain purchase when the
// registrar fails after the card was charged. There is no refund.
type DomainRegistrationError struct {
	Domain string
	*PartialFulfillmentError
}

func (e *DomainRegistrationError) Error() string {
	return fmt.Sprintf("domain %s: %s", e.Domain, e.PartialFulfillmentError.Error())
}

func (e *DomainRegistrationError) Unwrap() error { return e.PartialFulfillmentError }

// NewDomainRegistrationError creates a new DomainRegistrationError
func NewDomainRegistrationError(domain, paymentID string, err error) *DomainRegistrationError {
	return &DomainRegistrationError{
		Domain:                  domain,
		PartialFulfillmentError: NewPartialFulfillmentError(paymentID, StageRegistration, err),
	}
}

// IsRetryable reports whether err is worth retrying at the caller layer.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var unavailable *ProviderUnavailableError
	if errors.As(err, &unavailable) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
