package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osezele-agbi/paygate/internal/domain"
)

// CreateParams carries everything a provider needs to open a payment.
// Amount is always in major currency units; adapters convert to the
// vendor's minor-unit representation internally.
type CreateParams struct {
	Amount      decimal.Decimal
	Currency    domain.Currency
	UserID      uuid.UUID
	CustomerID  string
	Description string
	Metadata    map[string]string
}

// PaymentIntent is the normalized in-flight payment snapshot returned by an
// adapter. RawStatus preserves the vendor's own status string for auditing.
type PaymentIntent struct {
	ProviderPaymentID string
	Amount            decimal.Decimal
	Currency          domain.Currency
	Status            domain.PaymentStatus
	RawStatus         string
	ClientSecret      string
	Metadata          map[string]string
}

type CaptureParams struct {
	PaymentID string
	// Amount, when non-zero, requests a partial capture. Only honored by
	// vendors that support it.
	Amount decimal.Decimal
}

type RefundParams struct {
	PaymentID string
	// Amount zero means full refund of the remaining amount; the exact
	// semantics are vendor-defined.
	Amount decimal.Decimal
	Reason string
}

type RefundResult struct {
	ProviderRefundID string
	PaymentID        string
	Amount           decimal.Decimal
	Status           domain.RefundStatus
	RawStatus        string
}

// WebhookEvent is the common triple every provider's webhook envelope is
// normalized into, plus the fields the orchestration layer dispatches on.
type WebhookEvent struct {
	ID                string
	Type              string
	Data              json.RawMessage
	ProviderPaymentID string
	Status            domain.PaymentStatus
	RawStatus         string
}

// Provider is the capability contract each payment vendor adapter implements.
type Provider interface {
	Name() domain.ProviderType

	CreatePayment(ctx context.Context, params CreateParams) (*PaymentIntent, error)
	CapturePayment(ctx context.Context, params CaptureParams) (*PaymentIntent, error)
	RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error)
	GetPaymentStatus(ctx context.Context, providerPaymentID string) (*PaymentIntent, error)

	// VerifyWebhook checks the delivery's integrity against the exact raw
	// payload bytes. A nil return means the signature is authentic.
	VerifyWebhook(payload []byte, headers http.Header) error
	ParseWebhookEvent(payload []byte) (*WebhookEvent, error)
}

// zeroDecimalCurrencies have no minor unit; amounts go to vendors as-is.
var zeroDecimalCurrencies = map[domain.Currency]bool{
	"JPY": true,
	"KRW": true,
	"VND": true,
}

func toMinorUnits(amount decimal.Decimal, currency domain.Currency) int64 {
	if zeroDecimalCurrencies[currency] {
		return amount.Round(0).IntPart()
	}
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinorUnits(amount int64, currency domain.Currency) decimal.Decimal {
	d := decimal.NewFromInt(amount)
	if zeroDecimalCurrencies[currency] {
		return d
	}
	return d.Div(decimal.NewFromInt(100))
}
