package handler

import (
	"context"
	"fmt"
	"time"

	"CarbonReporting/internal/event"
	"CarbonReporting/internal/notify"
	"CarbonReporting/internal/persistence"
)

// Store is what handlers need from the persistence layer. In production it
// is a *persistence.Writer bound to the claiming transaction, so every write
// a handler makes commits or rolls back together with the ledger claim.
type Store interface {
	UpsertUser(ctx context.Context, row persistence.UserRow) error
	UpdateUserProfile(ctx context.Context, patch persistence.UserPatch) error
	RecordUserLogin(ctx context.Context, userID int64, at time.Time) error
	SetUserEnabled(ctx context.Context, userID int64, enabled bool, at time.Time) error
	InsertUserActivity(ctx context.Context, row persistence.ActivityRow) error
	UpsertTrade(ctx context.Context, row persistence.TradeRow) error
	UpsertPayment(ctx context.Context, row persistence.PaymentRow) error
	UpsertIssuance(ctx context.Context, row persistence.IssuanceRow) error
}

// Counter names a business counter the dispatcher increments after commit.
type Counter int

const (
	CounterNone Counter = iota
	CounterUserRegistered
	CounterUserLogin
	CounterTradeExecuted
	CounterCreditIssued
	CounterPayment
)

// SideEffect is a deferred consequence of handling an event. Handlers return
// descriptors instead of acting directly so that nothing observable happens
// for a transaction that later rolls back.
type SideEffect struct {
	Counter Counter
	// Label refines the counter, currently only the payment status.
	Label string
	// Notification, when set, is published after commit.
	Notification *notify.Notification
}

func counterEffect(c Counter) SideEffect {
	return SideEffect{Counter: c}
}

func labeledCounterEffect(c Counter, label string) SideEffect {
	return SideEffect{Counter: c, Label: label}
}

func notificationEffect(n notify.Notification) SideEffect {
	return SideEffect{Notification: &n}
}

// Dispatch routes a typed event to its category handler. The switch is
// exhaustive over the types the parser produces.
func Dispatch(ctx context.Context, store Store, evt event.Event) ([]SideEffect, error) {
	switch e := evt.(type) {
	case *event.UserEvent:
		return HandleUser(ctx, store, e)
	case *event.TradeEvent:
		return HandleTrade(ctx, store, e)
	case *event.PaymentEvent:
		return HandlePayment(ctx, store, e)
	case *event.IssuanceEvent:
		return HandleIssuance(ctx, store, e)
	default:
		return nil, fmt.Errorf("no handler for event type %T", evt)
	}
}
