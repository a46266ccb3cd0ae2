package event

import (
	"time"

	"github.com/google/uuid"
)

// Trade order status tags from the marketplace service.
const (
	OrderCreated        = "CREATED"
	OrderUpdated        = "UPDATED"
	OrderPendingPayment = "PENDING_PAYMENT"
	OrderCompleted      = "COMPLETED"
	OrderCancelled      = "CANCELLED"
)

// HighValueTradeThreshold is the amount above which a trade triggers a
// broadcast notification (VND).
const HighValueTradeThreshold = 1_000_000

// TradeEvent represents an order lifecycle event from the marketplace.
// Idempotency key: event_id; business key: (order_id, executed_at).
type TradeEvent struct {
	ID              string
	Source          string
	CorrelationID   string
	OrderID         uuid.UUID
	ListingID       *uuid.UUID
	BuyerID         *int64
	SellerID        *int64
	Quantity        float64
	QuantityUnit    string
	UnitPrice       float64
	Amount          float64
	Currency        string
	OrderStatus     string
	Region          *string
	IsAuction       bool
	AuctionID       *uuid.UUID
	Timestamp       time.Time
	StatusChangedAt time.Time
}

func (t *TradeEvent) EventID() string {
	return t.ID
}

func (t *TradeEvent) Category() Category {
	return CategoryTrade
}

func (t *TradeEvent) OccurredAt() time.Time {
	return t.Timestamp
}

// CountsAsExecuted reports whether this status increments the executed-trade
// metric. CREATED and CANCELLED do not.
func (t *TradeEvent) CountsAsExecuted() bool {
	return t.OrderStatus == OrderCompleted || t.OrderStatus == OrderPendingPayment
}
