package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/osezele-agbi/paygate/internal/domain"
)

const webhookLogColumns = `id, payment_id, provider, event_type, event_id, payload,
	signature, verified, processed, error_message, received_at`

type WebhookLogRepository struct {
	db *sql.DB
}

func NewWebhookLogRepository(db *sql.DB) *WebhookLogRepository {
	return &WebhookLogRepository{db: db}
}

// Create appends a delivery record. A unique index on (provider, event_id)
// makes redelivered events surface as ErrDuplicateWebhook.
func (r *WebhookLogRepository) Create(ctx context.Context, log *domain.WebhookLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_logs (
			id, payment_id, provider, event_type, event_id, payload,
			signature, verified, processed, error_message, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID, log.PaymentID, log.Provider, log.EventType, log.EventID,
		jsonArg(log.Payload), log.Signature, log.Verified, log.Processed,
		log.ErrorMessage, log.ReceivedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateWebhook)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// MarkProcessed flips the processed flag once; errorMessage is set when
// processing failed so recovery stays an external concern.
func (r *WebhookLogRepository) MarkProcessed(ctx context.Context, id uuid.UUID, processed bool, errorMessage *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE webhook_logs SET processed = $1, error_message = $2 WHERE id = $3`,
		processed, errorMessage, id,
	)
	if err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkProcessed: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("MarkProcessed: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *WebhookLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookLog, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+webhookLogColumns+` FROM webhook_logs WHERE id = $1`, id,
	)
	log, err := scanWebhookLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return log, nil
}

func (r *WebhookLogRepository) ListByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]domain.WebhookLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+webhookLogColumns+` FROM webhook_logs WHERE payment_id = $1 ORDER BY received_at`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByPaymentID: %w", err)
	}
	defer rows.Close()

	var logs []domain.WebhookLog
	for rows.Next() {
		log, err := scanWebhookLog(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByPaymentID: scan: %w", err)
		}
		logs = append(logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByPaymentID: rows: %w", err)
	}
	return logs, nil
}

func scanWebhookLog(s scanner) (*domain.WebhookLog, error) {
	var log domain.WebhookLog
	var paymentID uuid.NullUUID
	var payload *[]byte

	err := s.Scan(
		&log.ID, &paymentID, &log.Provider, &log.EventType, &log.EventID,
		&payload, &log.Signature, &log.Verified, &log.Processed,
		&log.ErrorMessage, &log.ReceivedAt,
	)
	if err != nil {
		return nil, err
	}

	if paymentID.Valid {
		log.PaymentID = &paymentID.UUID
	}
	if payload != nil {
		log.Payload = *payload
	}
	return &log, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
