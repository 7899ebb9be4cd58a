package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

type PaymentRefund struct {
	ID               uuid.UUID
	PaymentID        uuid.UUID
	ProviderRefundID *string
	Amount           decimal.Decimal
	Status           RefundStatus
	Reason           *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
