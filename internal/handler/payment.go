package handler

import (
	"context"
	"fmt"

	"CarbonReporting/internal/event"
	"CarbonReporting/internal/notify"
	"CarbonReporting/internal/persistence"
)

// HandlePayment upserts a payment fact. The partition column is the
// status-specific timestamp (completed beats failed beats initiated), so a
// payment that initiates in one month and completes in the next lands in two
// rows, one per status.
func HandlePayment(ctx context.Context, store Store, e *event.PaymentEvent) ([]SideEffect, error) {
	if err := store.UpsertPayment(ctx, persistence.PaymentRow{
		PaymentID:       e.PaymentID,
		OrderID:         e.OrderID,
		PayerID:         e.PayerID,
		PayeeID:         e.PayeeID,
		Amount:          e.Amount,
		Currency:        e.Currency,
		Status:          e.Status,
		PaymentMethod:   e.PaymentMethod,
		StatusAt:        e.StatusTimestamp(),
		Region:          e.Region,
		StatusChangedAt: e.Timestamp,
	}); err != nil {
		return nil, fmt.Errorf("upsert payment %s: %w", e.PaymentID, err)
	}

	effects := []SideEffect{
		labeledCounterEffect(CounterPayment, e.Status),
	}

	if e.Status == event.PaymentFailed {
		n := notify.NewNotification(
			"PAYMENT_FAILED", notify.LevelError, notify.AudienceAdmin,
			"Payment failed",
			fmt.Sprintf("Payment %s for order %s failed: %s", e.PaymentID, e.OrderID, e.ErrorMessage),
		)
		n.Data = map[string]interface{}{
			"paymentId": e.PaymentID,
			"orderId":   e.OrderID,
			"errorCode": e.ErrorCode,
		}
		effects = append(effects, notificationEffect(n))
	}

	return effects, nil
}
