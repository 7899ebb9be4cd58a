package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osezele-agbi/paygate/internal/domain"
	"github.com/osezele-agbi/paygate/internal/logging"
	"github.com/osezele-agbi/paygate/internal/provider"
)

// Capture finalizes a pending or processing payment. An already succeeded
// payment is rejected before any provider call is made.
func (s *Service) Capture(ctx context.Context, paymentID, userID uuid.UUID, amount decimal.Decimal) (*domain.Payment, error) {
	log := logging.FromContext(ctx)

	p, err := s.GetPaymentForUser(ctx, paymentID, userID)
	if err != nil {
		return nil, fmt.Errorf("Capture: %w", err)
	}

	if p.Status == domain.PaymentStatusSucceeded {
		return nil, fmt.Errorf("Capture: %w", domain.ErrAlreadyCaptured)
	}
	if p.Status.IsTerminal() || p.Status == domain.PaymentStatusPartiallyRefunded {
		return nil, fmt.Errorf("Capture: %w", domain.ErrPaymentTerminal)
	}
	if p.ProviderPaymentID == nil {
		return nil, fmt.Errorf("Capture: payment has no provider payment id: %w", domain.ErrInvalidRequest)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("Capture: %w", domain.ErrInvalidAmount)
	}

	prov, err := s.adapterFor(p)
	if err != nil {
		return nil, fmt.Errorf("Capture: %w", err)
	}

	intent, err := prov.CapturePayment(ctx, provider.CaptureParams{
		PaymentID: *p.ProviderPaymentID,
		Amount:    amount,
	})
	if err != nil {
		return nil, fmt.Errorf("Capture: provider: %w", err)
	}

	if intent.Status == domain.PaymentStatusUnknown {
		log.Warn("unmapped provider status on capture",
			"provider", prov.Name(),
			"raw_status", intent.RawStatus,
			"payment_id", p.ID,
		)
	}

	now := time.Now().UTC()
	var completedAt *time.Time
	if intent.Status == domain.PaymentStatusSucceeded {
		completedAt = &now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Capture: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.payments.UpdateStatus(ctx, tx, p.ID, intent.Status, nil, completedAt); err != nil {
		return nil, fmt.Errorf("Capture: update payment: %w", err)
	}

	eventPayload, _ := json.Marshal(map[string]string{"raw_status": intent.RawStatus})
	event := &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: p.ID,
		EventType: domain.PaymentEventTypeCaptured,
		Actor:     userID.String(),
		Payload:   eventPayload,
		CreatedAt: now,
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("Capture: create event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Capture: commit: %w", err)
	}

	log.Info("payment captured",
		"payment_id", p.ID,
		"provider", p.Provider,
		"status", intent.Status,
	)

	p.Status = intent.Status
	p.UpdatedAt = now
	p.CompletedAt = completedAt
	return p, nil
}
