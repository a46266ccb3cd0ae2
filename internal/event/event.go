package event

import (
	"time"
)

// Category discriminator for event payloads. Each upstream service publishes
// into its own queue, so the set is closed and known at compile time.
type Category int32

const (
	CategoryUnknown Category = iota
	CategoryUser
	CategoryTrade
	CategoryPayment
	CategoryIssuance
)

// Event is the interface all inbound payloads implement.
type Event interface {
	// EventID returns the producer-assigned idempotency key.
	EventID() string

	// Category returns the discriminator.
	Category() Category

	// OccurredAt returns the business timestamp carried by the producer
	// (NOT the local receive time).
	OccurredAt() time.Time
}

func (c Category) String() string {
	switch c {
	case CategoryUser:
		return "USER"
	case CategoryTrade:
		return "TRADE"
	case CategoryPayment:
		return "PAYMENT"
	case CategoryIssuance:
		return "ISSUANCE"
	default:
		return "UNKNOWN"
	}
}

// LedgerType returns the event_type string stored in the idempotency ledger.
func (c Category) LedgerType() string {
	switch c {
	case CategoryUser:
		return "USER_EVENT"
	case CategoryTrade:
		return "TRADE_EVENT"
	case CategoryPayment:
		return "PAYMENT_EVENT"
	case CategoryIssuance:
		return "ISSUANCE_EVENT"
	default:
		return "UNKNOWN_EVENT"
	}
}

// Categories returns every consumable category in dispatch order.
func Categories() []Category {
	return []Category{CategoryUser, CategoryTrade, CategoryPayment, CategoryIssuance}
}
