package payment

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osezele-agbi/paygate/internal/domain"
	"github.com/osezele-agbi/paygate/internal/provider"
)

type paymentRepo interface {
	Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error)
	GetByProviderPaymentID(ctx context.Context, provider domain.ProviderType, providerPaymentID string) (*domain.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, failureReason *string, completedAt *time.Time) error
	ApplyRefund(ctx context.Context, tx *sql.Tx, id uuid.UUID, refundedAmount decimal.Decimal, status domain.PaymentStatus) error
}

type refundRepo interface {
	Create(ctx context.Context, tx *sql.Tx, refund *domain.PaymentRefund) error
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentRefund, error)
}

type eventRepo interface {
	Create(ctx context.Context, tx *sql.Tx, event *domain.PaymentEvent) error
	GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentEvent, error)
}

type webhookLogRepo interface {
	Create(ctx context.Context, log *domain.WebhookLog) error
	MarkProcessed(ctx context.Context, id uuid.UUID, processed bool, errorMessage *string) error
}

type providerRegistry interface {
	Default() provider.Provider
	ForName(name string) (provider.Provider, error)
}

type Service struct {
	payments  paymentRepo
	refunds   refundRepo
	events    eventRepo
	webhooks  webhookLogRepo
	providers providerRegistry
	db        *sql.DB
}

func NewService(
	payments paymentRepo,
	refunds refundRepo,
	events eventRepo,
	webhooks webhookLogRepo,
	providers providerRegistry,
	db *sql.DB,
) *Service {
	return &Service{
		payments:  payments,
		refunds:   refunds,
		events:    events,
		webhooks:  webhooks,
		providers: providers,
		db:        db,
	}
}

// GetPaymentForUser hides payments owned by other users behind not-found.
func (s *Service) GetPaymentForUser(ctx context.Context, paymentID, userID uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("GetPaymentForUser: %w", err)
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("GetPaymentForUser: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (s *Service) ListPaymentsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	payments, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ListPaymentsForUser: %w", err)
	}
	return payments, nil
}

// ListRefundsForPayment returns a payment's refunds, oldest first.
func (s *Service) ListRefundsForPayment(ctx context.Context, paymentID, userID uuid.UUID) ([]domain.PaymentRefund, error) {
	if _, err := s.GetPaymentForUser(ctx, paymentID, userID); err != nil {
		return nil, fmt.Errorf("ListRefundsForPayment: %w", err)
	}
	refunds, err := s.refunds.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("ListRefundsForPayment: %w", err)
	}
	return refunds, nil
}

// ListEventsForPayment returns a payment's audit trail, oldest first.
func (s *Service) ListEventsForPayment(ctx context.Context, paymentID, userID uuid.UUID) ([]domain.PaymentEvent, error) {
	if _, err := s.GetPaymentForUser(ctx, paymentID, userID); err != nil {
		return nil, fmt.Errorf("ListEventsForPayment: %w", err)
	}
	events, err := s.events.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("ListEventsForPayment: %w", err)
	}
	return events, nil
}

// adapterFor resolves the adapter a payment was created with, which may
// differ from the configured default if the selection changed since.
func (s *Service) adapterFor(p *domain.Payment) (provider.Provider, error) {
	prov, err := s.providers.ForName(string(p.Provider))
	if err != nil {
		return nil, fmt.Errorf("adapterFor: %w", err)
	}
	return prov, nil
}
