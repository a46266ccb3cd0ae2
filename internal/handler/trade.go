package handler

import (
	"context"
	"fmt"

	"CarbonReporting/internal/event"
	"CarbonReporting/internal/notify"
	"CarbonReporting/internal/persistence"
)

// HandleTrade upserts a trade fact keyed by (order_id, executed_at). Every
// status change lands in the same row; CREATED and CANCELLED rows exist for
// reporting but do not count as executed trades.
func HandleTrade(ctx context.Context, store Store, e *event.TradeEvent) ([]SideEffect, error) {
	row := persistence.TradeRow{
		OrderID:         e.OrderID.String(),
		BuyerID:         e.BuyerID,
		SellerID:        e.SellerID,
		Quantity:        e.Quantity,
		Unit:            e.QuantityUnit,
		UnitPrice:       e.UnitPrice,
		Amount:          e.Amount,
		Currency:        e.Currency,
		ExecutedAt:      e.Timestamp,
		Region:          e.Region,
		IsAuction:       e.IsAuction,
		OrderStatus:     e.OrderStatus,
		StatusChangedAt: e.StatusChangedAt,
	}
	if e.ListingID != nil {
		s := e.ListingID.String()
		row.ListingID = &s
	}

	if err := store.UpsertTrade(ctx, row); err != nil {
		return nil, fmt.Errorf("upsert trade %s: %w", e.OrderID, err)
	}

	var effects []SideEffect
	if e.CountsAsExecuted() {
		effects = append(effects, counterEffect(CounterTradeExecuted))
	}

	if e.Amount > event.HighValueTradeThreshold {
		n := notify.NewNotification(
			"HIGH_VALUE_TRADE", notify.LevelInfo, notify.AudienceBroadcast,
			"High-value trade",
			fmt.Sprintf("Order %s traded %.2f %s", e.OrderID, e.Amount, e.Currency),
		)
		n.Data = map[string]interface{}{
			"orderId":  e.OrderID.String(),
			"amount":   e.Amount,
			"currency": e.Currency,
		}
		effects = append(effects, notificationEffect(n))
	}

	return effects, nil
}
