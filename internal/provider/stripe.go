package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/osezele-agbi/paygate/internal/domain"
)

const stripeBaseURL = "https://api.stripe.com"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// ManualCapture opens payment intents with capture_method=manual so a
	// separate capture call finalizes them.
	ManualCapture bool
}

type Stripe struct {
	cfg        StripeConfig
	baseURL    string
	httpClient *http.Client
}

func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("NewStripe: secret key missing: %w", domain.ErrProviderConfig)
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("NewStripe: webhook secret missing: %w", domain.ErrProviderConfig)
	}
	return &Stripe{
		cfg:     cfg,
		baseURL: stripeBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (s *Stripe) Name() domain.ProviderType { return domain.ProviderStripe }

type stripeIntent struct {
	ID           string            `json:"id"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata"`
}

type stripeRefund struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
}

type stripeErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Stripe) CreatePayment(ctx context.Context, params CreateParams) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toMinorUnits(params.Amount, params.Currency), 10))
	form.Set("currency", strings.ToLower(string(params.Currency)))
	if s.cfg.ManualCapture {
		form.Set("capture_method", "manual")
	}
	if params.CustomerID != "" {
		form.Set("customer", params.CustomerID)
	}
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	form.Set("metadata[user_id]", params.UserID.String())
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var intent stripeIntent
	if err := s.do(ctx, http.MethodPost, "/v1/payment_intents", form, &intent); err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}
	return s.toIntent(intent), nil
}

func (s *Stripe) CapturePayment(ctx context.Context, params CaptureParams) (*PaymentIntent, error) {
	current, err := s.GetPaymentStatus(ctx, params.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("CapturePayment: %w", err)
	}

	// Auto-capture intents have nothing left to capture; the fetch above is
	// the confirmation.
	if !s.cfg.ManualCapture || current.RawStatus == "succeeded" {
		return current, nil
	}

	form := url.Values{}
	if !params.Amount.IsZero() {
		form.Set("amount_to_capture", strconv.FormatInt(toMinorUnits(params.Amount, current.Currency), 10))
	}

	var intent stripeIntent
	path := "/v1/payment_intents/" + url.PathEscape(params.PaymentID) + "/capture"
	if err := s.do(ctx, http.MethodPost, path, form, &intent); err != nil {
		return nil, fmt.Errorf("CapturePayment: %w", err)
	}
	return s.toIntent(intent), nil
}

func (s *Stripe) RefundPayment(ctx context.Context, params RefundParams) (*RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", params.PaymentID)
	if !params.Amount.IsZero() {
		intent, err := s.GetPaymentStatus(ctx, params.PaymentID)
		if err != nil {
			return nil, fmt.Errorf("RefundPayment: %w", err)
		}
		form.Set("amount", strconv.FormatInt(toMinorUnits(params.Amount, intent.Currency), 10))
	}
	if params.Reason != "" {
		form.Set("reason", params.Reason)
	}

	var refund stripeRefund
	if err := s.do(ctx, http.MethodPost, "/v1/refunds", form, &refund); err != nil {
		return nil, fmt.Errorf("RefundPayment: %w", err)
	}

	currency := domain.Currency(strings.ToUpper(refund.Currency))
	return &RefundResult{
		ProviderRefundID: refund.ID,
		PaymentID:        refund.PaymentIntent,
		Amount:           fromMinorUnits(refund.Amount, currency),
		Status:           mapStripeRefundStatus(refund.Status),
		RawStatus:        refund.Status,
	}, nil
}

func (s *Stripe) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*PaymentIntent, error) {
	var intent stripeIntent
	path := "/v1/payment_intents/" + url.PathEscape(providerPaymentID)
	if err := s.do(ctx, http.MethodGet, path, nil, &intent); err != nil {
		return nil, fmt.Errorf("GetPaymentStatus: %w", err)
	}
	return s.toIntent(intent), nil
}

// VerifyWebhook checks the Stripe-Signature header: a comma-separated list of
// t=<unix> and v1=<hex hmac> pairs where the MAC covers "<t>.<payload>".
func (s *Stripe) VerifyWebhook(payload []byte, headers http.Header) error {
	header := headers.Get("Stripe-Signature")
	if header == "" {
		return fmt.Errorf("VerifyWebhook: missing Stripe-Signature header: %w", domain.ErrInvalidSignature)
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signatures = append(signatures, v)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("VerifyWebhook: malformed Stripe-Signature header: %w", domain.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("VerifyWebhook: %w", domain.ErrInvalidSignature)
}

type stripeEventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (s *Stripe) ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var envelope stripeEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("ParseWebhookEvent: %w", err)
	}
	if envelope.ID == "" || envelope.Type == "" {
		return nil, fmt.Errorf("ParseWebhookEvent: missing event id or type: %w", domain.ErrInvalidRequest)
	}

	var object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if len(envelope.Data.Object) > 0 {
		if err := json.Unmarshal(envelope.Data.Object, &object); err != nil {
			return nil, fmt.Errorf("ParseWebhookEvent: data.object: %w", err)
		}
	}

	return &WebhookEvent{
		ID:                envelope.ID,
		Type:              envelope.Type,
		Data:              envelope.Data.Object,
		ProviderPaymentID: object.ID,
		Status:            mapStripeStatus(object.Status),
		RawStatus:         object.Status,
	}, nil
}

func (s *Stripe) toIntent(in stripeIntent) *PaymentIntent {
	currency := domain.Currency(strings.ToUpper(in.Currency))
	return &PaymentIntent{
		ProviderPaymentID: in.ID,
		Amount:            fromMinorUnits(in.Amount, currency),
		Currency:          currency,
		Status:            mapStripeStatus(in.Status),
		RawStatus:         in.Status,
		ClientSecret:      in.ClientSecret,
		Metadata:          in.Metadata,
	}
}

func (s *Stripe) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("do: build request: %w", err)
	}
	req.SetBasicAuth(s.cfg.SecretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do: send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("do: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr stripeErrorBody
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return &domain.ProviderError{
				Provider: domain.ProviderStripe,
				Code:     apiErr.Error.Code,
				Message:  apiErr.Error.Message,
			}
		}
		return &domain.ProviderError{
			Provider: domain.ProviderStripe,
			Message:  fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("do: decode response: %w", err)
	}
	return nil
}

var stripeStatusMap = map[string]domain.PaymentStatus{
	"requires_payment_method": domain.PaymentStatusPending,
	"requires_confirmation":   domain.PaymentStatusPending,
	"requires_action":         domain.PaymentStatusPending,
	"processing":              domain.PaymentStatusProcessing,
	"requires_capture":        domain.PaymentStatusProcessing,
	"succeeded":               domain.PaymentStatusSucceeded,
	"canceled":                domain.PaymentStatusCancelled,
}

func mapStripeStatus(raw string) domain.PaymentStatus {
	if status, ok := stripeStatusMap[raw]; ok {
		return status
	}
	return domain.PaymentStatusUnknown
}

func mapStripeRefundStatus(raw string) domain.RefundStatus {
	switch raw {
	case "succeeded":
		return domain.RefundStatusSucceeded
	case "pending", "requires_action":
		return domain.RefundStatusPending
	default:
		return domain.RefundStatusFailed
	}
}
