package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/osezele-agbi/paygate/internal/domain"
)

const paymentColumns = `id, user_id, provider, provider_payment_id, amount, currency,
	status, method, description, metadata, refunded_amount, failure_reason,
	created_at, updated_at, completed_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, tx *sql.Tx, payment *domain.Payment) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payments (
			id, user_id, provider, provider_payment_id, amount, currency,
			status, method, description, metadata, refunded_amount, failure_reason,
			created_at, updated_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		payment.ID, payment.UserID, payment.Provider, payment.ProviderPaymentID,
		payment.Amount, payment.Currency, payment.Status, payment.Method,
		payment.Description, jsonArg(payment.Metadata), payment.RefundedAmount,
		payment.FailureReason, payment.CreatedAt, payment.UpdatedAt, payment.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

// GetForUpdate locks the payment row for the duration of the transaction so
// refund bookkeeping is a single atomic read-modify-write.
func (r *PaymentRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Payment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByProviderPaymentID(ctx context.Context, provider domain.ProviderType, providerPaymentID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND provider_payment_id = $2`,
		provider, providerPaymentID,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByProviderPaymentID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByProviderPaymentID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByUser: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByUser: scan: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByUser: rows: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.PaymentStatus, failureReason *string, completedAt *time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET status = $1, failure_reason = $2, completed_at = $3, updated_at = now()
		WHERE id = $4`,
		status, failureReason, completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("UpdateStatus: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateStatus: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// ApplyRefund advances the refund bookkeeping on a locked payment row.
func (r *PaymentRepository) ApplyRefund(ctx context.Context, tx *sql.Tx, id uuid.UUID, refundedAmount decimal.Decimal, status domain.PaymentStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE payments SET refunded_amount = $1, status = $2, updated_at = now()
		WHERE id = $3`,
		refundedAmount, status, id,
	)
	if err != nil {
		return fmt.Errorf("ApplyRefund: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ApplyRefund: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("ApplyRefund: %w", domain.ErrNotFound)
	}
	return nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	var method *string
	var metadata *[]byte

	err := s.Scan(
		&p.ID, &p.UserID, &p.Provider, &p.ProviderPaymentID, &p.Amount, &p.Currency,
		&p.Status, &method, &p.Description, &metadata, &p.RefundedAmount,
		&p.FailureReason, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if method != nil {
		m := domain.PaymentMethod(*method)
		p.Method = &m
	}
	if metadata != nil {
		p.Metadata = *metadata
	}

	return &p, nil
}
