package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WebhookLog is an append-only audit record of every webhook delivery.
// Rows are never mutated after insert except to flip Processed and set
// ErrorMessage exactly once.
type WebhookLog struct {
	ID           uuid.UUID
	PaymentID    *uuid.UUID
	Provider     ProviderType
	EventType    string
	EventID      *string
	Payload      json.RawMessage
	Signature    *string
	Verified     bool
	Processed    bool
	ErrorMessage *string
	ReceivedAt   time.Time
}
