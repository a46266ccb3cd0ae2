package event

import (
	"time"
)

// Payment status tags from the payment service.
const (
	PaymentPending    = "PENDING"
	PaymentProcessing = "PROCESSING"
	PaymentCompleted  = "COMPLETED"
	PaymentFailed     = "FAILED"
	PaymentRefunded   = "REFUNDED"
)

// PaymentEvent represents a payment lifecycle event.
// Idempotency key: event_id; business key: payment_id.
type PaymentEvent struct {
	ID            string
	Source        string
	CorrelationID string
	PaymentID     string
	OrderID       string
	PayerID       *int64
	PayeeID       *int64
	Amount        float64
	Currency      string
	Status        string
	PaymentMethod string
	Region        *string
	InitiatedAt   *time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
	ErrorCode     string
	ErrorMessage  string
	Timestamp     time.Time
}

func (p *PaymentEvent) EventID() string {
	return p.ID
}

func (p *PaymentEvent) Category() Category {
	return CategoryPayment
}

func (p *PaymentEvent) OccurredAt() time.Time {
	return p.Timestamp
}

// StatusTimestamp picks the timestamp that best describes the current status:
// completed > failed > initiated, first non-nil wins. Falls back to the
// envelope timestamp when the producer set none of them.
func (p *PaymentEvent) StatusTimestamp() time.Time {
	switch {
	case p.CompletedAt != nil:
		return *p.CompletedAt
	case p.FailedAt != nil:
		return *p.FailedAt
	case p.InitiatedAt != nil:
		return *p.InitiatedAt
	default:
		return p.Timestamp
	}
}
