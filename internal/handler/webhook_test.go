package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osezele-agbi/paygate/internal/domain"
	"github.com/osezele-agbi/paygate/internal/service/payment"
)

type stubWebhookService struct {
	result *payment.WebhookResult
	err    error

	lastProvider string
	lastPayload  []byte
}

func (s *stubWebhookService) HandleWebhook(ctx context.Context, providerName string, payload []byte, headers http.Header) (*payment.WebhookResult, error) {
	s.lastProvider = providerName
	s.lastPayload = payload
	return s.result, s.err
}

func TestWebhookReceive(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		result     *payment.WebhookResult
		err        error
		wantStatus int
		wantData   string
		wantCode   string
	}{
		{
			name:       "accepted",
			provider:   "stripe",
			result:     &payment.WebhookResult{LogID: uuid.New()},
			wantStatus: http.StatusOK,
			wantData:   "received",
		},
		{
			name:       "duplicate delivery",
			provider:   "stripe",
			result:     &payment.WebhookResult{Duplicate: true},
			wantStatus: http.StatusOK,
			wantData:   "already_received",
		},
		{
			name:       "invalid signature",
			provider:   "razorpay",
			err:        domain.ErrInvalidSignature,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_SIGNATURE",
		},
		{
			name:       "unknown provider",
			provider:   "paypal",
			err:        domain.ErrUnknownProvider,
			wantStatus: http.StatusBadRequest,
			wantCode:   "UNKNOWN_PROVIDER",
		},
		{
			name:       "malformed payload",
			provider:   "stripe",
			err:        domain.ErrInvalidRequest,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubWebhookService{result: tc.result, err: tc.err}
			h := NewWebhookHandler(svc)

			payload := []byte(`{"id":"evt_1"}`)
			req := httptest.NewRequest("POST", "/api/v1/payments/webhook/"+tc.provider, bytes.NewReader(payload))
			req.SetPathValue("provider", tc.provider)

			rec := httptest.NewRecorder()
			h.Receive(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.provider, svc.lastProvider)
			assert.Equal(t, payload, svc.lastPayload)

			var resp APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}

			assert.True(t, resp.Success)
			data, ok := resp.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tc.wantData, data["status"])
		})
	}
}
