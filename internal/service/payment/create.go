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

type CreateRequest struct {
	UserID      uuid.UUID
	Amount      decimal.Decimal
	Currency    domain.Currency
	CustomerID  string
	Description string
	Metadata    map[string]string
}

func (r CreateRequest) validate() error {
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return domain.ErrInvalidAmount
	}
	if !r.Currency.IsValid() {
		return domain.ErrInvalidCurrency
	}
	return nil
}

// Create opens a payment with the configured provider and persists it. If
// the provider rejects the call nothing is written (fail-closed).
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Payment, error) {
	log := logging.FromContext(ctx)

	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	prov := s.providers.Default()
	intent, err := prov.CreatePayment(ctx, provider.CreateParams{
		Amount:      req.Amount,
		Currency:    req.Currency,
		UserID:      req.UserID,
		CustomerID:  req.CustomerID,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("Create: provider: %w", err)
	}

	if intent.Status == domain.PaymentStatusUnknown {
		log.Warn("unmapped provider status on create",
			"provider", prov.Name(),
			"raw_status", intent.RawStatus,
			"provider_payment_id", intent.ProviderPaymentID,
		)
	}

	now := time.Now().UTC()
	providerPaymentID := intent.ProviderPaymentID
	p := &domain.Payment{
		ID:                uuid.New(),
		UserID:            req.UserID,
		Provider:          prov.Name(),
		ProviderPaymentID: &providerPaymentID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            intent.Status,
		RefundedAmount:    decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.Description != "" {
		p.Description = &req.Description
	}
	if len(req.Metadata) > 0 {
		metadata, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("Create: marshal metadata: %w", err)
		}
		p.Metadata = metadata
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Create: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.payments.Create(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("Create: %w", err)
	}

	eventPayload, _ := json.Marshal(map[string]string{
		"provider":            string(p.Provider),
		"provider_payment_id": providerPaymentID,
		"raw_status":          intent.RawStatus,
	})
	event := &domain.PaymentEvent{
		ID:        uuid.New(),
		PaymentID: p.ID,
		EventType: domain.PaymentEventTypeCreated,
		Actor:     req.UserID.String(),
		Payload:   eventPayload,
		CreatedAt: now,
	}
	if err := s.events.Create(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("Create: create event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Create: commit: %w", err)
	}

	log.Info("payment created",
		"payment_id", p.ID,
		"provider", p.Provider,
		"provider_payment_id", providerPaymentID,
		"amount", req.Amount,
		"currency", req.Currency,
		"status", p.Status,
	)

	return p, nil
}
