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

type RefundRequest struct {
	PaymentID uuid.UUID
	UserID    uuid.UUID
	// Amount zero requests a full refund of the remaining amount.
	Amount decimal.Decimal
	Reason string
}

// Refund issues a full or partial refund. The payment row is locked for the
// whole read-check-write sequence, so concurrent refunds serialize and the
// refunded total can never exceed the payment amount.
func (s *Service) Refund(ctx context.Context, req RefundRequest) (*domain.PaymentRefund, error) {
	log := logging.FromContext(ctx)

	if req.Amount.IsNegative() {
		return nil, fmt.Errorf("Refund: %w", domain.ErrInvalidAmount)
	}

	// Ownership check outside the transaction keeps foreign payments
	// indistinguishable from missing ones without holding a lock.
	if _, err := s.GetPaymentForUser(ctx, req.PaymentID, req.UserID); err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Refund: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := s.payments.GetForUpdate(ctx, tx, req.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	if p.Status != domain.PaymentStatusSucceeded && p.Status != domain.PaymentStatusPartiallyRefunded {
		return nil, fmt.Errorf("Refund: status %s: %w", p.Status, domain.ErrRefundNotEligible)
	}

	remaining := p.RemainingRefundable()
	amount := req.Amount
	if amount.IsZero() {
		amount = remaining
	}
	if amount.GreaterThan(remaining) {
		return nil, fmt.Errorf("Refund: requested %s, remaining %s: %w",
			amount, remaining, domain.ErrRefundExceedsAmount)
	}
	if p.ProviderPaymentID == nil {
		return nil, fmt.Errorf("Refund: payment has no provider payment id: %w", domain.ErrInvalidRequest)
	}

	prov, err := s.adapterFor(p)
	if err != nil {
		return nil, fmt.Errorf("Refund: %w", err)
	}

	result, err := prov.RefundPayment(ctx, provider.RefundParams{
		PaymentID: *p.ProviderPaymentID,
		Amount:    amount,
		Reason:    req.Reason,
	})
	if err != nil {
		return nil, fmt.Errorf("Refund: provider: %w", err)
	}

	newRefunded := p.RefundedAmount.Add(amount)
	newStatus := domain.PaymentStatusPartiallyRefunded
	if newRefunded.GreaterThanOrEqual(p.Amount) {
		newStatus = domain.PaymentStatusRefunded
	}

	now := time.Now().UTC()
	refund := &domain.PaymentRefund{
		ID:        uuid.New(),
		PaymentID: p.ID,
		Amount:    amount,
		Status:    result.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if result.ProviderRefundID != "" {
		id := result.ProviderRefundID
		refund.ProviderRefundID = &id
	}
	if req.Reason != "" {
		reason := req.Reason
		refund.Reason = &reason
	}

	if err := s.refunds.Create(ctx, tx, refund); err != nil {
		return nil, fmt.Errorf("Refund: create refund: %w", err)
	}
	if err := s.payments.ApplyRefund(ctx, tx, p.ID, newRefunded, newStatus); err != nil {
		return nil, fmt.Errorf("Refund: apply refund: %w", err)
	}

	eventPayload, _ := json.Marshal(map[string]string{
		"refund_id":          refund.ID.String(),
		"provider_refund_id": result.ProviderRefundID,
		"amount":             amount.String(),
		"new_status":         string(newStatus),
	})
	event := &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: p.ID,
		EventType: domain.PaymentEventTypeRefunded,
		Actor:     req.UserID.String(),
		Payload:   eventPayload,
		CreatedAt: now,
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("Refund: create event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Refund: commit: %w", err)
	}

	log.Info("payment refunded",
		"payment_id", p.ID,
		"refund_id", refund.ID,
		"amount", amount,
		"refunded_total", newRefunded,
		"status", newStatus,
	)

	return refund, nil
}
