package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/osezele-agbi/paygate/internal/domain"
	"github.com/osezele-agbi/paygate/internal/logging"
	"github.com/osezele-agbi/paygate/internal/provider"
)

// WebhookResult reports how a delivery was handled so the HTTP layer can
// answer the vendor without re-deriving state.
type WebhookResult struct {
	LogID     uuid.UUID
	Duplicate bool
}

// signatureHeaders are the per-vendor signature header names, recorded on the
// webhook log for auditing.
var signatureHeaders = []string{
	"Stripe-Signature",
	"X-Razorpay-Signature",
	"x-webhook-signature",
}

// HandleWebhook verifies, records, and applies a provider webhook delivery.
// Signature failures reject the request; everything after the log row is
// written lands on the row's processed/error fields instead of the response.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, payload []byte, headers http.Header) (*WebhookResult, error) {
	log := logging.FromContext(ctx)

	prov, err := s.providers.ForName(providerName)
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: %w", err)
	}

	signature := extractSignature(headers)

	if err := prov.VerifyWebhook(payload, headers); err != nil {
		unverified := &domain.WebhookLog{
			ID:         uuid.New(),
			Provider:   prov.Name(),
			EventType:  "unverified",
			Payload:    payload,
			Signature:  signature,
			Verified:   false,
			Processed:  false,
			ReceivedAt: time.Now().UTC(),
		}
		msg := "signature verification failed"
		unverified.ErrorMessage = &msg
		if logErr := s.webhooks.Create(ctx, unverified); logErr != nil {
			log.Error("failed to record unverified webhook", "error", logErr)
		}
		log.Warn("webhook signature verification failed", "provider", providerName)
		return nil, fmt.Errorf("HandleWebhook: %w", domain.ErrInvalidSignature)
	}

	event, err := prov.ParseWebhookEvent(payload)
	if err != nil {
		return nil, fmt.Errorf("HandleWebhook: parse: %w: %v", domain.ErrInvalidRequest, err)
	}

	// Resolve the payment up front so the log row links to it even when the
	// event cannot be applied.
	var target *domain.Payment
	if event.ProviderPaymentID != "" {
		target, err = s.payments.GetByProviderPaymentID(ctx, prov.Name(), event.ProviderPaymentID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("HandleWebhook: %w", err)
		}
	}

	entry := &domain.WebhookLog{
		ID:         uuid.New(),
		Provider:   prov.Name(),
		EventType:  event.Type,
		Payload:    payload,
		Signature:  signature,
		Verified:   true,
		Processed:  false,
		ReceivedAt: time.Now().UTC(),
	}
	if event.ID != "" {
		id := event.ID
		entry.EventID = &id
	}
	if target != nil {
		entry.PaymentID = &target.ID
	}

	if err := s.webhooks.Create(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateWebhook) {
			log.Info("duplicate webhook delivery", "provider", providerName, "event_id", event.ID)
			return &WebhookResult{Duplicate: true}, nil
		}
		return nil, fmt.Errorf("HandleWebhook: record: %w", err)
	}

	if err := s.applyWebhookEvent(ctx, prov.Name(), target, event); err != nil {
		msg := err.Error()
		if markErr := s.webhooks.MarkProcessed(ctx, entry.ID, false, &msg); markErr != nil {
			log.Error("failed to mark webhook log", "error", markErr, "webhook_log_id", entry.ID)
		}
		log.Warn("webhook event not applied",
			"provider", providerName,
			"event_type", event.Type,
			"provider_payment_id", event.ProviderPaymentID,
			"error", err,
		)
		// The delivery itself was authentic and well-formed; tell the
		// vendor it landed and keep the failure on the log row.
		return &WebhookResult{LogID: entry.ID}, nil
	}

	if err := s.webhooks.MarkProcessed(ctx, entry.ID, true, nil); err != nil {
		log.Error("failed to mark webhook processed", "error", err, "webhook_log_id", entry.ID)
	}

	log.Info("webhook processed",
		"provider", providerName,
		"event_type", event.Type,
		"provider_payment_id", event.ProviderPaymentID,
	)
	return &WebhookResult{LogID: entry.ID}, nil
}

func (s *Service) applyWebhookEvent(ctx context.Context, providerType domain.ProviderType, p *domain.Payment, event *provider.WebhookEvent) error {
	if event.ProviderPaymentID == "" {
		return fmt.Errorf("applyWebhookEvent: event carries no provider payment id")
	}
	if event.Status == domain.PaymentStatusUnknown {
		return fmt.Errorf("applyWebhookEvent: unmapped provider status %q", event.RawStatus)
	}
	if p == nil {
		return fmt.Errorf("applyWebhookEvent: no payment for provider payment id %q", event.ProviderPaymentID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("applyWebhookEvent: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := s.payments.GetForUpdate(ctx, tx, p.ID)
	if err != nil {
		return fmt.Errorf("applyWebhookEvent: %w", err)
	}

	if !locked.Status.CanTransitionTo(event.Status) {
		// Stale or out-of-order delivery; the current state wins.
		logging.FromContext(ctx).Info("webhook status transition skipped",
			"payment_id", locked.ID,
			"current_status", locked.Status,
			"event_status", event.Status,
		)
		return nil
	}

	now := time.Now().UTC()
	var completedAt *time.Time
	if event.Status == domain.PaymentStatusSucceeded {
		completedAt = &now
	}
	var failureReason *string
	if event.Status == domain.PaymentStatusFailed {
		reason := event.Type
		failureReason = &reason
	}

	if err := s.payments.UpdateStatus(ctx, tx, locked.ID, event.Status, failureReason, completedAt); err != nil {
		return fmt.Errorf("applyWebhookEvent: update payment: %w", err)
	}

	paymentEvent := &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: locked.ID,
		EventType: domain.PaymentEventTypeWebhookApplied,
		Actor:     "webhook:" + string(providerType),
		Payload:   event.Data,
		CreatedAt: now,
	}
	if err := s.events.Create(ctx, tx, paymentEvent); err != nil {
		return fmt.Errorf("applyWebhookEvent: create event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("applyWebhookEvent: commit: %w", err)
	}
	return nil
}

func extractSignature(headers http.Header) *string {
	for _, name := range signatureHeaders {
		if v := headers.Get(name); v != "" {
			return &v
		}
	}
	return nil
}
