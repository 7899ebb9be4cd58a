package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/osezele-agbi/paygate/internal/domain"
)

const refundColumns = `id, payment_id, provider_refund_id, amount, status, reason,
	created_at, updated_at`

type RefundRepository struct {
	db *sql.DB
}

func NewRefundRepository(db *sql.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, tx *sql.Tx, refund *domain.PaymentRefund) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO payment_refunds (
			id, payment_id, provider_refund_id, amount, status, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		refund.ID, refund.PaymentID, refund.ProviderRefundID, refund.Amount,
		refund.Status, refund.Reason, refund.CreatedAt, refund.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *RefundRepository) GetByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.PaymentRefund, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+refundColumns+` FROM payment_refunds WHERE payment_id = $1 ORDER BY created_at`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByPaymentID: %w", err)
	}
	defer rows.Close()

	var refunds []domain.PaymentRefund
	for rows.Next() {
		var ref domain.PaymentRefund
		err := rows.Scan(
			&ref.ID, &ref.PaymentID, &ref.ProviderRefundID, &ref.Amount,
			&ref.Status, &ref.Reason, &ref.CreatedAt, &ref.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("GetByPaymentID: scan: %w", err)
		}
		refunds = append(refunds, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByPaymentID: rows: %w", err)
	}
	return refunds, nil
}
