package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/osezele-agbi/paygate/internal/domain"
)

type CashfreeConfig struct {
	AppID         string
	SecretKey     string
	WebhookSecret string
}

// Cashfree is a partial adapter: webhook verification and event parsing are
// live, payment operations are not wired to the vendor API yet and return
// ErrOperationUnsupported.
type Cashfree struct {
	cfg CashfreeConfig
}

func NewCashfree(cfg CashfreeConfig) (*Cashfree, error) {
	if cfg.AppID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("NewCashfree: app id or secret key missing: %w", domain.ErrProviderConfig)
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("NewCashfree: webhook secret missing: %w", domain.ErrProviderConfig)
	}
	return &Cashfree{cfg: cfg}, nil
}

func (c *Cashfree) Name() domain.ProviderType { return domain.ProviderCashfree }

func (c *Cashfree) CreatePayment(ctx context.Context, params CreateParams) (*PaymentIntent, error) {
	return nil, fmt.Errorf("CreatePayment: cashfree: %w", domain.ErrOperationUnsupported)
}

func (c *Cashfree) CapturePayment(ctx context.Context, params CaptureParams) (*PaymentIntent, error) {
	return nil, fmt.Errorf("CapturePayment: cashfree: %w", domain.ErrOperationUnsupported)
}

func (c *Cashfree) RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error) {
	return nil, fmt.Errorf("RefundPayment: cashfree: %w", domain.ErrOperationUnsupported)
}

func (c *Cashfree) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*PaymentIntent, error) {
	return nil, fmt.Errorf("GetPaymentStatus: cashfree: %w", domain.ErrOperationUnsupported)
}

// VerifyWebhook checks x-webhook-signature: base64(HMAC-SHA256(timestamp +
// payload)) keyed by the webhook secret, with the timestamp taken from the
// x-webhook-timestamp header.
func (c *Cashfree) VerifyWebhook(payload []byte, headers http.Header) error {
	signature := headers.Get("x-webhook-signature")
	timestamp := headers.Get("x-webhook-timestamp")
	if signature == "" || timestamp == "" {
		return fmt.Errorf("VerifyWebhook: missing signature or timestamp header: %w", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(c.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("VerifyWebhook: %w", domain.ErrInvalidSignature)
	}
	return nil
}

type cashfreeEventEnvelope struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
		Payment struct {
			CFPaymentID   json.Number `json:"cf_payment_id"`
			PaymentStatus string      `json:"payment_status"`
		} `json:"payment"`
	} `json:"data"`
}

func (c *Cashfree) ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var envelope cashfreeEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("ParseWebhookEvent: %w", err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("ParseWebhookEvent: missing event type: %w", domain.ErrInvalidRequest)
	}

	var data json.RawMessage
	if raw, err := json.Marshal(envelope.Data); err == nil {
		data = raw
	}

	rawStatus := envelope.Data.Payment.PaymentStatus
	return &WebhookEvent{
		ID:                fmt.Sprintf("%s:%s:%s", envelope.Type, envelope.Data.Order.OrderID, envelope.EventTime),
		Type:              envelope.Type,
		Data:              data,
		ProviderPaymentID: envelope.Data.Order.OrderID,
		Status:            mapCashfreeStatus(rawStatus),
		RawStatus:         rawStatus,
	}, nil
}

var cashfreeStatusMap = map[string]domain.PaymentStatus{
	"SUCCESS":       domain.PaymentStatusSucceeded,
	"FAILED":        domain.PaymentStatusFailed,
	"PENDING":       domain.PaymentStatusPending,
	"NOT_ATTEMPTED": domain.PaymentStatusPending,
	"CANCELLED":     domain.PaymentStatusCancelled,
	"USER_DROPPED":  domain.PaymentStatusCancelled,
}

func mapCashfreeStatus(raw string) domain.PaymentStatus {
	if status, ok := cashfreeStatusMap[raw]; ok {
		return status
	}
	return domain.PaymentStatusUnknown
}
