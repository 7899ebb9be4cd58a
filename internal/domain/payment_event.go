package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PaymentEventType string

const (
	PaymentEventTypeCreated        PaymentEventType = "created"
	PaymentEventTypeCaptured       PaymentEventType = "captured"
	PaymentEventTypeRefunded       PaymentEventType = "refunded"
	PaymentEventTypeStatusChanged  PaymentEventType = "status_changed"
	PaymentEventTypeWebhookApplied PaymentEventType = "webhook_applied"
)

type PaymentEvent struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	EventType PaymentEventType
	Actor     string
	Payload   json.RawMessage
	CreatedAt time.Time
}
