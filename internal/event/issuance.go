package event

import (
	"time"
)

// Issuance status tags from the carbon service.
const (
	IssuancePending  = "PENDING"
	IssuanceApproved = "APPROVED"
	IssuanceRejected = "REJECTED"
)

// IssuanceEvent represents a carbon-credit issuance decision.
// issuance_id exists only once credits are issued (APPROVED); PENDING and
// REJECTED outcomes carry only the request_id.
type IssuanceEvent struct {
	ID            string
	Source        string
	CorrelationID string
	IssuanceID    string
	RequestID     string
	UserID        *int64
	VehicleID     string
	QuantityTCO2e float64
	DistanceKm    *float64
	EnergyKwh     *float64
	CO2AvoidedKg  *float64
	Status        string
	Region        *string
	VehicleMake   string
	VehicleModel  string
	VehicleType   string
	Timestamp     time.Time
}

func (i *IssuanceEvent) EventID() string {
	return i.ID
}

func (i *IssuanceEvent) Category() Category {
	return CategoryIssuance
}

func (i *IssuanceEvent) OccurredAt() time.Time {
	return i.Timestamp
}

// FactKey returns the identifier used in logs and errors for this event:
// the issuance id once credits exist, otherwise the request id.
func (i *IssuanceEvent) FactKey() string {
	if i.IssuanceID != "" {
		return i.IssuanceID
	}
	return i.RequestID
}
