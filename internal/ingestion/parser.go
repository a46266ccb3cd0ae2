package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"CarbonReporting/internal/event"
)

// ParseRawMessage converts broker JSON into a typed event for the message's
// category. Wire field names are camelCase to match the upstream producers.
// A parse error is terminal: the dispatcher dead-letters the message rather
// than retrying a payload that can never deserialize.
func ParseRawMessage(raw RawMessage) (event.Event, error) {
	switch raw.Category {
	case event.CategoryUser:
		return parseUserEvent(raw.Data)
	case event.CategoryTrade:
		return parseTradeEvent(raw.Data)
	case event.CategoryPayment:
		return parsePaymentEvent(raw.Data)
	case event.CategoryIssuance:
		return parseIssuanceEvent(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event category: %d", raw.Category)
	}
}

type userEventJSON struct {
	EventID       string     `json:"eventId"`
	Source        string     `json:"source"`
	CorrelationID string     `json:"correlationId"`
	Action        string     `json:"action"`
	UserID        int64      `json:"userId"`
	Username      *string    `json:"username"`
	Email         *string    `json:"email"`
	Role          *string    `json:"role"`
	Region        *string    `json:"region"`
	Organization  *string    `json:"organization"`
	PhoneNumber   *string    `json:"phoneNumber"`
	Enabled       *bool      `json:"enabled"`
	Timestamp     *time.Time `json:"timestamp"`
}

func parseUserEvent(data []byte) (*event.UserEvent, error) {
	var j userEventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse user event: %w", err)
	}
	if j.EventID == "" {
		return nil, fmt.Errorf("user event missing eventId")
	}
	if j.UserID == 0 {
		return nil, fmt.Errorf("user event %s missing userId", j.EventID)
	}

	action := event.UserAction(j.Action)
	switch action {
	case event.UserRegistered, event.UserLoggedIn, event.UserUpdated,
		event.UserDeleted, event.UserEnabled, event.UserDisabled:
	default:
		return nil, fmt.Errorf("user event %s has unknown action %q", j.EventID, j.Action)
	}

	return &event.UserEvent{
		ID:            j.EventID,
		Source:        j.Source,
		CorrelationID: j.CorrelationID,
		Action:        action,
		UserID:        j.UserID,
		Username:      j.Username,
		Email:         j.Email,
		Role:          j.Role,
		Region:        j.Region,
		Organization:  j.Organization,
		PhoneNumber:   j.PhoneNumber,
		Enabled:       j.Enabled,
		Timestamp:     timestampOrNow(j.Timestamp),
		Raw:           data,
	}, nil
}

type tradeEventJSON struct {
	EventID         string     `json:"eventId"`
	Source          string     `json:"source"`
	CorrelationID   string     `json:"correlationId"`
	OrderID         string     `json:"orderId"`
	ListingID       *string    `json:"listingId"`
	BuyerID         *int64     `json:"buyerId"`
	SellerID        *int64     `json:"sellerId"`
	Quantity        float64    `json:"quantity"`
	QuantityUnit    string     `json:"quantityUnit"`
	UnitPrice       float64    `json:"unitPrice"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	OrderStatus     string     `json:"orderStatus"`
	Region          *string    `json:"region"`
	IsAuction       bool       `json:"isAuction"`
	AuctionID       *string    `json:"auctionId"`
	StatusChangedAt *time.Time `json:"statusChangedAt"`
	Timestamp       *time.Time `json:"timestamp"`
}

func parseTradeEvent(data []byte) (*event.TradeEvent, error) {
	var j tradeEventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse trade event: %w", err)
	}
	if j.EventID == "" {
		return nil, fmt.Errorf("trade event missing eventId")
	}

	orderID, err := uuid.Parse(j.OrderID)
	if err != nil {
		return nil, fmt.Errorf("trade event %s: parse orderId: %w", j.EventID, err)
	}

	listingID, err := optionalUUID(j.ListingID)
	if err != nil {
		return nil, fmt.Errorf("trade event %s: parse listingId: %w", j.EventID, err)
	}
	auctionID, err := optionalUUID(j.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("trade event %s: parse auctionId: %w", j.EventID, err)
	}

	ts := timestampOrNow(j.Timestamp)
	statusAt := ts
	if j.StatusChangedAt != nil {
		statusAt = *j.StatusChangedAt
	}

	return &event.TradeEvent{
		ID:              j.EventID,
		Source:          j.Source,
		CorrelationID:   j.CorrelationID,
		OrderID:         orderID,
		ListingID:       listingID,
		BuyerID:         j.BuyerID,
		SellerID:        j.SellerID,
		Quantity:        j.Quantity,
		QuantityUnit:    j.QuantityUnit,
		UnitPrice:       j.UnitPrice,
		Amount:          j.Amount,
		Currency:        j.Currency,
		OrderStatus:     j.OrderStatus,
		Region:          j.Region,
		IsAuction:       j.IsAuction,
		AuctionID:       auctionID,
		Timestamp:       ts,
		StatusChangedAt: statusAt,
	}, nil
}

type paymentEventJSON struct {
	EventID       string     `json:"eventId"`
	Source        string     `json:"source"`
	CorrelationID string     `json:"correlationId"`
	PaymentID     string     `json:"paymentId"`
	OrderID       string     `json:"orderId"`
	PayerID       *int64     `json:"payerId"`
	PayeeID       *int64     `json:"payeeId"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"paymentMethod"`
	Region        *string    `json:"region"`
	InitiatedAt   *time.Time `json:"initiatedAt"`
	CompletedAt   *time.Time `json:"completedAt"`
	FailedAt      *time.Time `json:"failedAt"`
	ErrorCode     string     `json:"errorCode"`
	ErrorMessage  string     `json:"errorMessage"`
	Timestamp     *time.Time `json:"timestamp"`
}

func parsePaymentEvent(data []byte) (*event.PaymentEvent, error) {
	var j paymentEventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse payment event: %w", err)
	}
	if j.EventID == "" {
		return nil, fmt.Errorf("payment event missing eventId")
	}
	if j.PaymentID == "" {
		return nil, fmt.Errorf("payment event %s missing paymentId", j.EventID)
	}

	return &event.PaymentEvent{
		ID:            j.EventID,
		Source:        j.Source,
		CorrelationID: j.CorrelationID,
		PaymentID:     j.PaymentID,
		OrderID:       j.OrderID,
		PayerID:       j.PayerID,
		PayeeID:       j.PayeeID,
		Amount:        j.Amount,
		Currency:      j.Currency,
		Status:        j.Status,
		PaymentMethod: j.PaymentMethod,
		Region:        j.Region,
		InitiatedAt:   j.InitiatedAt,
		CompletedAt:   j.CompletedAt,
		FailedAt:      j.FailedAt,
		ErrorCode:     j.ErrorCode,
		ErrorMessage:  j.ErrorMessage,
		Timestamp:     timestampOrNow(j.Timestamp),
	}, nil
}

type issuanceEventJSON struct {
	EventID       string     `json:"eventId"`
	Source        string     `json:"source"`
	CorrelationID string     `json:"correlationId"`
	IssuanceID    string     `json:"issuanceId"`
	RequestID     string     `json:"requestId"`
	UserID        *int64     `json:"userId"`
	VehicleID     string     `json:"vehicleId"`
	QuantityTCO2e float64    `json:"quantityTco2e"`
	DistanceKm    *float64   `json:"distanceKm"`
	EnergyKwh     *float64   `json:"energyKwh"`
	CO2AvoidedKg  *float64   `json:"co2AvoidedKg"`
	Status        string     `json:"status"`
	Region        *string    `json:"region"`
	VehicleMake   string     `json:"vehicleMake"`
	VehicleModel  string     `json:"vehicleModel"`
	VehicleType   string     `json:"vehicleType"`
	Timestamp     *time.Time `json:"timestamp"`
}

func parseIssuanceEvent(data []byte) (*event.IssuanceEvent, error) {
	var j issuanceEventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse issuance event: %w", err)
	}
	if j.EventID == "" {
		return nil, fmt.Errorf("issuance event missing eventId")
	}
	if j.IssuanceID == "" && j.RequestID == "" {
		return nil, fmt.Errorf("issuance event %s has neither issuanceId nor requestId", j.EventID)
	}

	return &event.IssuanceEvent{
		ID:            j.EventID,
		Source:        j.Source,
		CorrelationID: j.CorrelationID,
		IssuanceID:    j.IssuanceID,
		RequestID:     j.RequestID,
		UserID:        j.UserID,
		VehicleID:     j.VehicleID,
		QuantityTCO2e: j.QuantityTCO2e,
		DistanceKm:    j.DistanceKm,
		EnergyKwh:     j.EnergyKwh,
		CO2AvoidedKg:  j.CO2AvoidedKg,
		Status:        j.Status,
		Region:        j.Region,
		VehicleMake:   j.VehicleMake,
		VehicleModel:  j.VehicleModel,
		VehicleType:   j.VehicleType,
		Timestamp:     timestampOrNow(j.Timestamp),
	}, nil
}

func optionalUUID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// timestampOrNow tolerates producers that omit the envelope timestamp.
func timestampOrNow(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now().UTC()
}
