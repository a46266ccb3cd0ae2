package handler

import (
	"context"
	"fmt"

	"CarbonReporting/internal/event"
	"CarbonReporting/internal/notify"
	"CarbonReporting/internal/persistence"
)

// HandleIssuance upserts an issuance fact keyed by request id. The PENDING
// and APPROVED events for one request collapse into a single row; APPROVED
// fills in the issuance id.
func HandleIssuance(ctx context.Context, store Store, e *event.IssuanceEvent) ([]SideEffect, error) {
	row := persistence.IssuanceRow{
		RequestID:     e.RequestID,
		UserID:        e.UserID,
		VehicleID:     e.VehicleID,
		QuantityTCO2e: e.QuantityTCO2e,
		DistanceKm:    e.DistanceKm,
		EnergyKwh:     e.EnergyKwh,
		CO2AvoidedKg:  e.CO2AvoidedKg,
		Status:        e.Status,
		Region:        e.Region,
		IssuedAt:      e.Timestamp,
	}
	if e.IssuanceID != "" {
		id := e.IssuanceID
		row.IssuanceID = &id
	}
	// Producers that only learned the issuance id key on it alone.
	if row.RequestID == "" {
		row.RequestID = e.IssuanceID
	}

	if err := store.UpsertIssuance(ctx, row); err != nil {
		return nil, fmt.Errorf("upsert issuance %s: %w", e.FactKey(), err)
	}

	var effects []SideEffect
	switch e.Status {
	case event.IssuanceApproved:
		n := notify.NewNotification(
			"ISSUANCE_APPROVED", notify.LevelInfo, notify.AudienceUser,
			"Carbon credits issued",
			fmt.Sprintf("%.3f tCO2e issued for request %s", e.QuantityTCO2e, e.RequestID),
		)
		n.UserID = e.UserID
		n.Data = map[string]interface{}{
			"issuanceId":    e.IssuanceID,
			"requestId":     e.RequestID,
			"quantityTco2e": e.QuantityTCO2e,
		}
		effects = append(effects,
			counterEffect(CounterCreditIssued),
			notificationEffect(n),
		)

	case event.IssuancePending:
		n := notify.NewNotification(
			"ISSUANCE_PENDING", notify.LevelInfo, notify.AudienceAdmin,
			"Issuance request pending review",
			fmt.Sprintf("Request %s awaits review (%.3f tCO2e)", e.RequestID, e.QuantityTCO2e),
		)
		n.Data = map[string]interface{}{"requestId": e.RequestID}
		effects = append(effects, notificationEffect(n))

	case event.IssuanceRejected:
		n := notify.NewNotification(
			"ISSUANCE_REJECTED", notify.LevelWarn, notify.AudienceUser,
			"Issuance request rejected",
			fmt.Sprintf("Request %s was rejected", e.RequestID),
		)
		n.UserID = e.UserID
		n.Data = map[string]interface{}{"requestId": e.RequestID}
		effects = append(effects, notificationEffect(n))
	}

	return effects, nil
}
