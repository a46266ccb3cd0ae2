package persistence

import (
	"context"
	"time"
)

// TradeRow is a row in fact_trade, keyed by (order_id, executed_at).
type TradeRow struct {
	OrderID         string
	ListingID       *string
	BuyerID         *int64
	SellerID        *int64
	Quantity        float64
	Unit            string
	UnitPrice       float64
	Amount          float64
	Currency        string
	ExecutedAt      time.Time
	Region          *string
	IsAuction       bool
	OrderStatus     string
	StatusChangedAt time.Time
}

// UpsertTrade writes a trade fact. On conflict every mutable column is
// overwritten with the incoming values, with no timestamp-ordering guard. This
// tolerates legitimate status transitions (CREATED -> COMPLETED) arriving as
// separate events; an out-of-order redelivery of an older status can regress
// the row, which is accepted behavior (see the store tests).
func (w *Writer) UpsertTrade(ctx context.Context, row TradeRow) error {
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO fact_trade (
			order_id, listing_id, buyer_id, seller_id, quantity, unit, unit_price,
			amount, currency, executed_at, region, is_auction, order_status, status_changed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (order_id, executed_at) DO UPDATE SET
			listing_id        = EXCLUDED.listing_id,
			buyer_id          = EXCLUDED.buyer_id,
			seller_id         = EXCLUDED.seller_id,
			quantity          = EXCLUDED.quantity,
			unit              = EXCLUDED.unit,
			unit_price        = EXCLUDED.unit_price,
			amount            = EXCLUDED.amount,
			currency          = EXCLUDED.currency,
			region            = EXCLUDED.region,
			is_auction        = EXCLUDED.is_auction,
			order_status      = EXCLUDED.order_status,
			status_changed_at = EXCLUDED.status_changed_at
	`,
		row.OrderID, row.ListingID, row.BuyerID, row.SellerID, row.Quantity,
		row.Unit, row.UnitPrice, row.Amount, row.Currency, row.ExecutedAt,
		row.Region, row.IsAuction, row.OrderStatus, row.StatusChangedAt,
	)
	return err
}

// PaymentRow is a row in fact_payment, keyed by (payment_id, status_at).
type PaymentRow struct {
	PaymentID       string
	OrderID         string
	PayerID         *int64
	PayeeID         *int64
	Amount          float64
	Currency        string
	Status          string
	PaymentMethod   string
	StatusAt        time.Time
	Region          *string
	StatusChangedAt time.Time
}

// UpsertPayment writes a payment fact. StatusAt is the status-specific
// timestamp chosen by the handler (completed > failed > initiated).
func (w *Writer) UpsertPayment(ctx context.Context, row PaymentRow) error {
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO fact_payment (
			payment_id, order_id, payer_id, payee_id, amount, currency,
			status, payment_method, status_at, region, status_changed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (payment_id, status_at) DO UPDATE SET
			order_id          = EXCLUDED.order_id,
			payer_id          = EXCLUDED.payer_id,
			payee_id          = EXCLUDED.payee_id,
			amount            = EXCLUDED.amount,
			currency          = EXCLUDED.currency,
			status            = EXCLUDED.status,
			payment_method    = EXCLUDED.payment_method,
			region            = EXCLUDED.region,
			status_changed_at = EXCLUDED.status_changed_at
	`,
		row.PaymentID, row.OrderID, row.PayerID, row.PayeeID, row.Amount,
		row.Currency, row.Status, row.PaymentMethod, row.StatusAt, row.Region,
		row.StatusChangedAt,
	)
	return err
}

// IssuanceRow is a row in fact_issuance, keyed by request_id. issuance_id is
// filled in when the APPROVED event arrives, so PENDING and APPROVED collapse
// into the same row and the row becomes addressable by issuance id.
type IssuanceRow struct {
	IssuanceID    *string
	RequestID     string
	UserID        *int64
	VehicleID     string
	QuantityTCO2e float64
	DistanceKm    *float64
	EnergyKwh     *float64
	CO2AvoidedKg  *float64
	Status        string
	Region        *string
	IssuedAt      time.Time
}

// UpsertIssuance writes an issuance fact. COALESCE keeps an already-assigned
// issuance id if a late PENDING replayed without one.
func (w *Writer) UpsertIssuance(ctx context.Context, row IssuanceRow) error {
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO fact_issuance (
			issuance_id, request_id, user_id, vehicle_id, quantity_tco2e,
			distance_km, energy_kwh, co2_avoided_kg, status, region, issued_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (request_id) DO UPDATE SET
			issuance_id    = COALESCE(EXCLUDED.issuance_id, fact_issuance.issuance_id),
			user_id        = EXCLUDED.user_id,
			vehicle_id     = EXCLUDED.vehicle_id,
			quantity_tco2e = EXCLUDED.quantity_tco2e,
			distance_km    = EXCLUDED.distance_km,
			energy_kwh     = EXCLUDED.energy_kwh,
			co2_avoided_kg = EXCLUDED.co2_avoided_kg,
			status         = EXCLUDED.status,
			region         = EXCLUDED.region,
			issued_at      = EXCLUDED.issued_at
	`,
		row.IssuanceID, row.RequestID, row.UserID, row.VehicleID, row.QuantityTCO2e,
		row.DistanceKm, row.EnergyKwh, row.CO2AvoidedKg, row.Status, row.Region,
		row.IssuedAt,
	)
	return err
}

// ActivityRow is an append-only row in fact_user_activity.
type ActivityRow struct {
	UserID     int64
	EventType  string
	EventData  []byte // raw event JSON
	OccurredAt time.Time
}

// InsertUserActivity appends an activity fact. Activity rows are immutable;
// there is no conflict target because (user_id, occurred_at) pairs may repeat.
func (w *Writer) InsertUserActivity(ctx context.Context, row ActivityRow) error {
	data := row.EventData
	if len(data) == 0 {
		data = []byte("{}")
	}
	_, err := w.q.ExecContext(ctx, `
		INSERT INTO fact_user_activity (user_id, event_type, event_data, occurred_at)
		VALUES ($1, $2, $3::jsonb, $4)
	`, row.UserID, row.EventType, string(data), row.OccurredAt)
	return err
}
