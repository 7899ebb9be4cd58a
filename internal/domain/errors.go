package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidCurrency      = errors.New("invalid currency")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrAlreadyCaptured      = errors.New("payment already captured")
	ErrPaymentTerminal      = errors.New("payment already in terminal state")
	ErrRefundNotEligible    = errors.New("payment not eligible for refund")
	ErrRefundExceedsAmount  = errors.New("refund exceeds remaining refundable amount")
	ErrInvalidSignature     = errors.New("webhook signature verification failed")
	ErrDuplicateWebhook     = errors.New("webhook event already received")
	ErrUnknownProvider      = errors.New("unknown payment provider")
	ErrProviderConfig       = errors.New("provider configuration invalid")
	ErrOperationUnsupported = errors.New("operation not supported by provider")
)

// ProviderError carries a vendor-side rejection back to the caller with the
// vendor's own code and message intact.
type ProviderError struct {
	Provider ProviderType
	Code     string
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}
