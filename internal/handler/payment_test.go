package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osezele-agbi/paygate/internal/auth"
	"github.com/osezele-agbi/paygate/internal/domain"
	"github.com/osezele-agbi/paygate/internal/service/payment"
)

type stubPaymentService struct {
	payment *domain.Payment
	refund  *domain.PaymentRefund
	err     error

	lastCreate  payment.CreateRequest
	lastRefund  payment.RefundRequest
	lastCapture decimal.Decimal
}

func (s *stubPaymentService) Create(ctx context.Context, req payment.CreateRequest) (*domain.Payment, error) {
	s.lastCreate = req
	return s.payment, s.err
}

func (s *stubPaymentService) Capture(ctx context.Context, paymentID, userID uuid.UUID, amount decimal.Decimal) (*domain.Payment, error) {
	s.lastCapture = amount
	return s.payment, s.err
}

func (s *stubPaymentService) Refund(ctx context.Context, req payment.RefundRequest) (*domain.PaymentRefund, error) {
	s.lastRefund = req
	return s.refund, s.err
}

func (s *stubPaymentService) GetPaymentForUser(ctx context.Context, paymentID, userID uuid.UUID) (*domain.Payment, error) {
	return s.payment, s.err
}

func (s *stubPaymentService) ListPaymentsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.payment == nil {
		return nil, nil
	}
	return []domain.Payment{*s.payment}, nil
}

func (s *stubPaymentService) ListRefundsForPayment(ctx context.Context, paymentID, userID uuid.UUID) ([]domain.PaymentRefund, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.refund == nil {
		return nil, nil
	}
	return []domain.PaymentRefund{*s.refund}, nil
}

func (s *stubPaymentService) ListEventsForPayment(ctx context.Context, paymentID, userID uuid.UUID) ([]domain.PaymentEvent, error) {
	return nil, s.err
}

func stubPayment(userID uuid.UUID) *domain.Payment {
	ppid := "pi_stub"
	now := time.Now().UTC()
	return &domain.Payment{
		ID:                uuid.New(),
		UserID:            userID,
		Provider:          domain.ProviderStripe,
		ProviderPaymentID: &ppid,
		Amount:            decimal.RequireFromString("100.00"),
		Currency:          domain.CurrencyUSD,
		Status:            domain.PaymentStatusProcessing,
		RefundedAmount:    decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func authedRequest(method, target string, body []byte, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	return req.WithContext(auth.ContextWithUserID(req.Context(), userID))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestPaymentCreate(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       `{"amount":"100.00","currency":"USD"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "malformed body",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "zero amount",
			body:       `{"amount":"0","currency":"USD"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "missing currency",
			body:       `{"amount":"10.00"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "unsupported currency",
			body:       `{"amount":"10.00","currency":"AUD"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "provider rejection",
			body:       `{"amount":"10.00","currency":"USD"}`,
			svcErr:     &domain.ProviderError{Provider: domain.ProviderStripe, Code: "card_declined", Message: "declined"},
			wantStatus: http.StatusBadGateway,
			wantCode:   "PROVIDER_REJECTED",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPaymentService{payment: stubPayment(userID), err: tc.svcErr}
			h := NewPaymentHandler(svc)

			rec := httptest.NewRecorder()
			h.Create(rec, authedRequest("POST", "/api/v1/payments", []byte(tc.body), userID))

			assert.Equal(t, tc.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			if tc.wantCode == "" {
				assert.True(t, resp.Success)
				assert.NotEmpty(t, rec.Header().Get("Location"))
			} else {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestPaymentCreate_Unauthenticated(t *testing.T) {
	h := NewPaymentHandler(&stubPaymentService{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/payments", bytes.NewReader([]byte(`{}`)))

	h.Create(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MISSING_TOKEN", resp.Error.Code)
}

func TestPaymentCapture_ErrorMapping(t *testing.T) {
	userID := uuid.New()
	paymentID := uuid.New()

	tests := []struct {
		name       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"already captured", domain.ErrAlreadyCaptured, http.StatusConflict, "ALREADY_CAPTURED"},
		{"terminal payment", domain.ErrPaymentTerminal, http.StatusUnprocessableEntity, "PAYMENT_TERMINAL"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"unsupported provider op", domain.ErrOperationUnsupported, http.StatusUnprocessableEntity, "PROVIDER_UNSUPPORTED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPaymentService{err: tc.svcErr}
			h := NewPaymentHandler(svc)

			rec := httptest.NewRecorder()
			req := authedRequest("POST", "/api/v1/payments/"+paymentID.String()+"/capture", nil, userID)
			req.SetPathValue("id", paymentID.String())
			h.Capture(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestPaymentCapture_EmptyBodyMeansFullCapture(t *testing.T) {
	userID := uuid.New()
	paymentID := uuid.New()
	svc := &stubPaymentService{payment: stubPayment(userID)}
	h := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	req := authedRequest("POST", "/api/v1/payments/"+paymentID.String()+"/capture", nil, userID)
	req.SetPathValue("id", paymentID.String())
	h.Capture(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastCapture.IsZero())
}

func TestPaymentRefund(t *testing.T) {
	userID := uuid.New()
	paymentID := uuid.New()
	refundID := uuid.New()
	svc := &stubPaymentService{
		refund: &domain.PaymentRefund{
			ID:        refundID,
			PaymentID: paymentID,
			Amount:    decimal.RequireFromString("40.00"),
			Status:    domain.RefundStatusSucceeded,
			CreatedAt: time.Now().UTC(),
		},
	}
	h := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	body := []byte(`{"amount":"40.00","reason":"requested_by_customer"}`)
	req := authedRequest("POST", "/api/v1/payments/"+paymentID.String()+"/refund", body, userID)
	req.SetPathValue("id", paymentID.String())
	h.Refund(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	assert.Equal(t, paymentID, svc.lastRefund.PaymentID)
	assert.True(t, svc.lastRefund.Amount.Equal(decimal.RequireFromString("40.00")))
	assert.Equal(t, "requested_by_customer", svc.lastRefund.Reason)
}

func TestPaymentRefund_EmptyBodyMeansFullRefund(t *testing.T) {
	userID := uuid.New()
	paymentID := uuid.New()
	svc := &stubPaymentService{
		refund: &domain.PaymentRefund{
			ID:        uuid.New(),
			PaymentID: paymentID,
			Status:    domain.RefundStatusSucceeded,
			CreatedAt: time.Now().UTC(),
		},
	}
	h := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	req := authedRequest("POST", "/api/v1/payments/"+paymentID.String()+"/refund", nil, userID)
	req.SetPathValue("id", paymentID.String())
	h.Refund(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, svc.lastRefund.Amount.IsZero())
}

func TestPaymentRefund_ErrorMapping(t *testing.T) {
	userID := uuid.New()
	paymentID := uuid.New()

	tests := []struct {
		name       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"not eligible", domain.ErrRefundNotEligible, http.StatusUnprocessableEntity, "REFUND_NOT_ELIGIBLE"},
		{"exceeds remaining", domain.ErrRefundExceedsAmount, http.StatusUnprocessableEntity, "REFUND_EXCEEDS_AMOUNT"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPaymentService{err: tc.svcErr}
			h := NewPaymentHandler(svc)

			rec := httptest.NewRecorder()
			req := authedRequest("POST", "/api/v1/payments/"+paymentID.String()+"/refund", nil, userID)
			req.SetPathValue("id", paymentID.String())
			h.Refund(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			resp := decodeResponse(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestPaymentGet_InvalidID(t *testing.T) {
	h := NewPaymentHandler(&stubPaymentService{})

	rec := httptest.NewRecorder()
	req := authedRequest("GET", "/api/v1/payments/not-a-uuid", nil, uuid.New())
	req.SetPathValue("id", "not-a-uuid")
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentListRefunds(t *testing.T) {
	userID := uuid.New()
	paymentID := uuid.New()
	svc := &stubPaymentService{
		refund: &domain.PaymentRefund{
			ID:        uuid.New(),
			PaymentID: paymentID,
			Amount:    decimal.RequireFromString("10.00"),
			Status:    domain.RefundStatusSucceeded,
			CreatedAt: time.Now().UTC(),
		},
	}
	h := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	req := authedRequest("GET", "/api/v1/payments/"+paymentID.String()+"/refunds", nil, userID)
	req.SetPathValue("id", paymentID.String())
	h.ListRefunds(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	items, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestPaymentListEvents_ForeignPayment(t *testing.T) {
	paymentID := uuid.New()
	svc := &stubPaymentService{err: domain.ErrNotFound}
	h := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	req := authedRequest("GET", "/api/v1/payments/"+paymentID.String()+"/events", nil, uuid.New())
	req.SetPathValue("id", paymentID.String())
	h.ListEvents(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaymentList(t *testing.T) {
	userID := uuid.New()
	svc := &stubPaymentService{payment: stubPayment(userID)}
	h := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest("GET", "/api/v1/payments", nil, userID))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	items, ok := resp.Data.([]any)
	require.True(t, ok)
	assert.Len(t, items, 1)
}
