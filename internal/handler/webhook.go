package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/osezele-agbi/paygate/internal/logging"
	"github.com/osezele-agbi/paygate/internal/service/payment"
)

type webhookService interface {
	HandleWebhook(ctx context.Context, providerName string, payload []byte, headers http.Header) (*payment.WebhookResult, error)
}

type WebhookHandler struct {
	webhooks webhookService
}

func NewWebhookHandler(webhooks webhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Receive accepts a provider webhook. The provider named in the path decides
// which adapter verifies the signature; there is no bearer auth on this route.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	providerName := r.PathValue("provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	result, err := h.webhooks.HandleWebhook(r.Context(), providerName, body, r.Header)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if result.Duplicate {
		RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_received"})
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
}
