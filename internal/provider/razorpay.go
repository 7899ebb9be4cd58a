package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/osezele-agbi/paygate/internal/domain"
)

const razorpayBaseURL = "https://api.razorpay.com"

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

// Razorpay follows the vendor's two-phase order/payment model: CreatePayment
// opens an order, the client-side checkout attaches a payment to it, and
// CapturePayment finalizes an authorized payment.
type Razorpay struct {
	cfg        RazorpayConfig
	baseURL    string
	httpClient *http.Client
}

func NewRazorpay(cfg RazorpayConfig) (*Razorpay, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, fmt.Errorf("NewRazorpay: key id or secret missing: %w", domain.ErrProviderConfig)
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("NewRazorpay: webhook secret missing: %w", domain.ErrProviderConfig)
	}
	return &Razorpay{
		cfg:     cfg,
		baseURL: razorpayBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (r *Razorpay) Name() domain.ProviderType { return domain.ProviderRazorpay }

type razorpayOrder struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Status   string            `json:"status"`
	Notes    map[string]string `json:"notes"`
}

type razorpayPayment struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
	Method   string `json:"method"`
}

type razorpayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

type razorpayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (r *Razorpay) CreatePayment(ctx context.Context, params CreateParams) (*PaymentIntent, error) {
	notes := map[string]string{"user_id": params.UserID.String()}
	for k, v := range params.Metadata {
		notes[k] = v
	}

	body := map[string]any{
		// Razorpay amounts are strictly minor units (paise for INR).
		"amount":   toMinorUnits(params.Amount, params.Currency),
		"currency": string(params.Currency),
		"notes":    notes,
	}
	if params.Description != "" {
		body["receipt"] = params.Description
	}

	var order razorpayOrder
	if err := r.do(ctx, http.MethodPost, "/v1/orders", body, &order); err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}

	currency := domain.Currency(order.Currency)
	return &PaymentIntent{
		ProviderPaymentID: order.ID,
		Amount:            fromMinorUnits(order.Amount, currency),
		Currency:          currency,
		Status:            mapRazorpayOrderStatus(order.Status),
		RawStatus:         order.Status,
		// The order id doubles as the checkout handle on the client side.
		ClientSecret: order.ID,
		Metadata:     order.Notes,
	}, nil
}

// orderPayment resolves the payment the checkout attached to an order. A nil
// payment with nil error means nothing is attached yet.
func (r *Razorpay) orderPayment(ctx context.Context, orderID string) (*razorpayPayment, error) {
	var list struct {
		Count int               `json:"count"`
		Items []razorpayPayment `json:"items"`
	}
	path := "/v1/orders/" + url.PathEscape(orderID) + "/payments"
	if err := r.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, fmt.Errorf("orderPayment: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, nil
	}
	for i := range list.Items {
		if list.Items[i].Status == "captured" || list.Items[i].Status == "authorized" {
			return &list.Items[i], nil
		}
	}
	return &list.Items[len(list.Items)-1], nil
}

func (r *Razorpay) CapturePayment(ctx context.Context, params CaptureParams) (*PaymentIntent, error) {
	payment, err := r.orderPayment(ctx, params.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("CapturePayment: %w", err)
	}
	if payment == nil {
		return nil, &domain.ProviderError{
			Provider: domain.ProviderRazorpay,
			Message:  fmt.Sprintf("order %s has no payment to capture", params.PaymentID),
		}
	}
	if payment.Status == "captured" {
		return r.toIntent(*payment), nil
	}

	currency := domain.Currency(payment.Currency)
	amount := payment.Amount
	if !params.Amount.IsZero() {
		amount = toMinorUnits(params.Amount, currency)
	}
	body := map[string]any{
		"amount":   amount,
		"currency": payment.Currency,
	}

	var captured razorpayPayment
	path := "/v1/payments/" + url.PathEscape(payment.ID) + "/capture"
	if err := r.do(ctx, http.MethodPost, path, body, &captured); err != nil {
		return nil, fmt.Errorf("CapturePayment: %w", err)
	}
	return r.toIntent(captured), nil
}

func (r *Razorpay) RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error) {
	payment, err := r.orderPayment(ctx, params.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("RefundPayment: %w", err)
	}
	if payment == nil {
		return nil, &domain.ProviderError{
			Provider: domain.ProviderRazorpay,
			Message:  fmt.Sprintf("order %s has no payment to refund", params.PaymentID),
		}
	}
	currency := domain.Currency(payment.Currency)

	body := map[string]any{}
	if !params.Amount.IsZero() {
		body["amount"] = toMinorUnits(params.Amount, currency)
	}
	if params.Reason != "" {
		body["notes"] = map[string]string{"reason": params.Reason}
	}

	var refund razorpayRefund
	path := "/v1/payments/" + url.PathEscape(payment.ID) + "/refund"
	if err := r.do(ctx, http.MethodPost, path, body, &refund); err != nil {
		return nil, fmt.Errorf("RefundPayment: %w", err)
	}

	return &RefundResult{
		ProviderRefundID: refund.ID,
		PaymentID:        params.PaymentID,
		Amount:           fromMinorUnits(refund.Amount, currency),
		Status:           mapRazorpayRefundStatus(refund.Status),
		RawStatus:        refund.Status,
	}, nil
}

// GetPaymentStatus reports the payment attached to an order. Before the
// checkout attaches one, the order's own status stands in.
func (r *Razorpay) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*PaymentIntent, error) {
	payment, err := r.orderPayment(ctx, providerPaymentID)
	if err != nil {
		return nil, fmt.Errorf("GetPaymentStatus: %w", err)
	}
	if payment != nil {
		return r.toIntent(*payment), nil
	}

	var order razorpayOrder
	path := "/v1/orders/" + url.PathEscape(providerPaymentID)
	if err := r.do(ctx, http.MethodGet, path, nil, &order); err != nil {
		return nil, fmt.Errorf("GetPaymentStatus: %w", err)
	}
	currency := domain.Currency(order.Currency)
	return &PaymentIntent{
		ProviderPaymentID: order.ID,
		Amount:            fromMinorUnits(order.Amount, currency),
		Currency:          currency,
		Status:            mapRazorpayOrderStatus(order.Status),
		RawStatus:         order.Status,
		ClientSecret:      order.ID,
		Metadata:          order.Notes,
	}, nil
}

// VerifyWebhook checks the X-Razorpay-Signature header: HMAC-SHA256 of the
// exact raw body, hex-encoded, keyed by the webhook secret.
func (r *Razorpay) VerifyWebhook(payload []byte, headers http.Header) error {
	signature := headers.Get("X-Razorpay-Signature")
	if signature == "" {
		return fmt.Errorf("VerifyWebhook: missing X-Razorpay-Signature header: %w", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(r.cfg.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("VerifyWebhook: %w", domain.ErrInvalidSignature)
	}
	return nil
}

type razorpayEventEnvelope struct {
	Entity  string `json:"entity"`
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity json.RawMessage `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

func (r *Razorpay) ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var envelope razorpayEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("ParseWebhookEvent: %w", err)
	}
	if envelope.Event == "" {
		return nil, fmt.Errorf("ParseWebhookEvent: missing event type: %w", domain.ErrInvalidRequest)
	}

	var payment razorpayPayment
	if len(envelope.Payload.Payment.Entity) > 0 {
		if err := json.Unmarshal(envelope.Payload.Payment.Entity, &payment); err != nil {
			return nil, fmt.Errorf("ParseWebhookEvent: payment entity: %w", err)
		}
	}

	// The stored provider payment id is the order id, so normalize the
	// delivery to the payment's parent order.
	providerPaymentID := payment.OrderID
	if providerPaymentID == "" {
		providerPaymentID = payment.ID
	}

	// Razorpay carries no event id in the body; deliveries are deduplicated
	// by payment id + event type further up.
	return &WebhookEvent{
		ID:                fmt.Sprintf("%s:%s:%d", envelope.Event, payment.ID, envelope.CreatedAt),
		Type:              envelope.Event,
		Data:              envelope.Payload.Payment.Entity,
		ProviderPaymentID: providerPaymentID,
		Status:            mapRazorpayPaymentStatus(payment.Status),
		RawStatus:         payment.Status,
	}, nil
}

func (r *Razorpay) toIntent(p razorpayPayment) *PaymentIntent {
	id := p.OrderID
	if id == "" {
		id = p.ID
	}
	currency := domain.Currency(p.Currency)
	return &PaymentIntent{
		ProviderPaymentID: id,
		Amount:            fromMinorUnits(p.Amount, currency),
		Currency:          currency,
		Status:            mapRazorpayPaymentStatus(p.Status),
		RawStatus:         p.Status,
	}
}

func (r *Razorpay) do(ctx context.Context, method, path string, body map[string]any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("do: marshal: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("do: build request: %w", err)
	}
	req.SetBasicAuth(r.cfg.KeyID, r.cfg.KeySecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("do: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr razorpayErrorBody
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Description != "" {
			return &domain.ProviderError{
				Provider: domain.ProviderRazorpay,
				Code:     apiErr.Error.Code,
				Message:  apiErr.Error.Description,
			}
		}
		return &domain.ProviderError{
			Provider: domain.ProviderRazorpay,
			Message:  fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("do: decode response: %w", err)
	}
	return nil
}

var razorpayPaymentStatusMap = map[string]domain.PaymentStatus{
	"created":    domain.PaymentStatusPending,
	"authorized": domain.PaymentStatusProcessing,
	"captured":   domain.PaymentStatusSucceeded,
	"refunded":   domain.PaymentStatusRefunded,
	"failed":     domain.PaymentStatusFailed,
}

func mapRazorpayPaymentStatus(raw string) domain.PaymentStatus {
	if status, ok := razorpayPaymentStatusMap[raw]; ok {
		return status
	}
	return domain.PaymentStatusUnknown
}

func mapRazorpayOrderStatus(raw string) domain.PaymentStatus {
	switch raw {
	case "created":
		return domain.PaymentStatusPending
	case "attempted":
		return domain.PaymentStatusProcessing
	case "paid":
		return domain.PaymentStatusSucceeded
	default:
		return domain.PaymentStatusUnknown
	}
}

func mapRazorpayRefundStatus(raw string) domain.RefundStatus {
	switch raw {
	case "processed":
		return domain.RefundStatusSucceeded
	case "created", "pending":
		return domain.RefundStatusPending
	default:
		return domain.RefundStatusFailed
	}
}
