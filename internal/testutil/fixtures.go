package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osezele-agbi/paygate/internal/domain"
)

// SeedPayment inserts a payment row directly, bypassing the provider call.
func SeedPayment(t *testing.T, db *sql.DB, userID uuid.UUID, providerPaymentID string, amount decimal.Decimal, status domain.PaymentStatus) *domain.Payment {
	t.Helper()

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:             uuid.New(),
		UserID:         userID,
		Provider:       domain.ProviderStripe,
		Amount:         amount,
		Currency:       domain.CurrencyUSD,
		Status:         status,
		RefundedAmount: decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if providerPaymentID != "" {
		p.ProviderPaymentID = &providerPaymentID
	}

	_, err := db.Exec(
		`INSERT INTO payments (id, user_id, provider, provider_payment_id, amount, currency,
			status, refunded_amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.UserID, p.Provider, p.ProviderPaymentID, p.Amount, p.Currency,
		p.Status, p.RefundedAmount, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func GetPaymentStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.PaymentStatus {
	t.Helper()
	var status domain.PaymentStatus
	if err := db.QueryRow(`SELECT status FROM payments WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("get payment status: %v", err)
	}
	return status
}

func GetRefundedAmount(t *testing.T, db *sql.DB, id uuid.UUID) decimal.Decimal {
	t.Helper()
	var amount decimal.Decimal
	if err := db.QueryRow(`SELECT refunded_amount FROM payments WHERE id = $1`, id).Scan(&amount); err != nil {
		t.Fatalf("get refunded amount: %v", err)
	}
	return amount
}

func CountRefunds(t *testing.T, db *sql.DB, paymentID uuid.UUID) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM payment_refunds WHERE payment_id = $1`, paymentID).Scan(&n); err != nil {
		t.Fatalf("count refunds: %v", err)
	}
	return n
}

func CountWebhookLogs(t *testing.T, db *sql.DB, verified bool) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM webhook_logs WHERE verified = $1`, verified).Scan(&n); err != nil {
		t.Fatalf("count webhook logs: %v", err)
	}
	return n
}
