package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProviderType string

const (
	ProviderStripe   ProviderType = "stripe"
	ProviderRazorpay ProviderType = "razorpay"
	ProviderCashfree ProviderType = "cashfree"
)

func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderStripe, ProviderRazorpay, ProviderCashfree:
		return true
	}
	return false
}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyINR Currency = "INR"
)

func (c Currency) IsValid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyINR:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentStatusRefunded          PaymentStatus = "refunded"

	// PaymentStatusUnknown marks a vendor status string with no mapping.
	// It is surfaced and logged rather than silently treated as pending.
	PaymentStatusUnknown PaymentStatus = "unknown"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCancelled || s == PaymentStatusRefunded
}

// CanTransitionTo encodes the one-directional payment lifecycle. The only
// transitions out of succeeded are the refund states.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	if s == target {
		return false
	}
	switch s {
	case PaymentStatusPending:
		return target == PaymentStatusProcessing || target == PaymentStatusSucceeded ||
			target == PaymentStatusFailed || target == PaymentStatusCancelled
	case PaymentStatusProcessing:
		return target == PaymentStatusSucceeded || target == PaymentStatusFailed ||
			target == PaymentStatusCancelled
	case PaymentStatusSucceeded:
		return target == PaymentStatusPartiallyRefunded || target == PaymentStatusRefunded
	case PaymentStatusPartiallyRefunded:
		return target == PaymentStatusRefunded
	case PaymentStatusUnknown:
		return target != PaymentStatusUnknown
	default:
		return false
	}
}

type PaymentMethod string

const (
	PaymentMethodCard       PaymentMethod = "card"
	PaymentMethodUPI        PaymentMethod = "upi"
	PaymentMethodNetBanking PaymentMethod = "netbanking"
	PaymentMethodWallet     PaymentMethod = "wallet"
)

type Payment struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Provider          ProviderType
	ProviderPaymentID *string
	Amount            decimal.Decimal
	Currency          Currency
	Status            PaymentStatus
	Method            *PaymentMethod
	Description       *string
	Metadata          json.RawMessage
	RefundedAmount    decimal.Decimal
	FailureReason     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// RemainingRefundable is the amount still eligible for refund.
func (p *Payment) RemainingRefundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}
