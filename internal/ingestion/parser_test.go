package ingestion_test

import (
	"encoding/json"
	"testing"
	"time"

	"CarbonReporting/internal/event"
	"CarbonReporting/internal/ingestion"
)

func rawFromJSON(t *testing.T, category event.Category, v interface{}) ingestion.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawMessage{
		Category: category,
		Subject:  "test",
		Data:     data,
		Received: time.Now(),
		Ack:      func() error { return nil },
		Term:     func() error { return nil },
	}
}

func TestParseUserEvent(t *testing.T) {
	payload := map[string]interface{}{
		"eventId":   "evt-user-1",
		"source":    "auth-service",
		"action":    "REGISTERED",
		"userId":    int64(42),
		"username":  "alice",
		"email":     "alice@example.com",
		"role":      "SELLER",
		"region":    "HCMC",
		"enabled":   true,
		"timestamp": "2026-02-10T08:30:00Z",
	}

	raw := rawFromJSON(t, event.CategoryUser, payload)
	evt, err := ingestion.ParseRawMessage(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ue, ok := evt.(*event.UserEvent)
	if !ok {
		t.Fatalf("expected *event.UserEvent, got %T", evt)
	}
	if ue.ID != "evt-user-1" {
		t.Errorf("event id: got %s, want evt-user-1", ue.ID)
	}
	if ue.Action != event.UserRegistered {
		t.Errorf("action: got %s, want REGISTERED", ue.Action)
	}
	if ue.UserID != 42 {
		t.Errorf("user id: got %d, want 42", ue.UserID)
	}
	if ue.Username == nil || *ue.Username != "alice" {
		t.Errorf("username: got %v, want alice", ue.Username)
	}
	if ue.Enabled == nil || !*ue.Enabled {
		t.Errorf("enabled: got %v, want true", ue.Enabled)
	}
	if len(ue.Raw) == 0 {
		t.Error("raw payload not retained")
	}
}

func TestParseUserEventSparseUpdate(t *testing.T) {
	payload := map[string]interface{}{
		"eventId": "evt-user-2",
		"action":  "UPDATED",
		"userId":  int64(42),
		"email":   "new@example.com",
	}

	raw := rawFromJSON(t, event.CategoryUser, payload)
	evt, err := ingestion.ParseRawMessage(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ue := evt.(*event.UserEvent)
	if ue.Email == nil || *ue.Email != "new@example.com" {
		t.Errorf("email: got %v, want new@example.com", ue.Email)
	}
	if ue.Username != nil {
		t.Errorf("username should be nil on sparse update, got %q", *ue.Username)
	}
	if ue.Timestamp.IsZero() {
		t.Error("missing timestamp should default, got zero")
	}
}

func TestParseUserEventRejectsUnknownAction(t *testing.T) {
	payload := map[string]interface{}{
		"eventId": "evt-user-3",
		"action":  "EXPLODED",
		"userId":  int64(1),
	}

	raw := rawFromJSON(t, event.CategoryUser, payload)
	if _, err := ingestion.ParseRawMessage(raw); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestParseTradeEvent(t *testing.T) {
	payload := map[string]interface{}{
		"eventId":         "evt-trade-1",
		"source":          "marketplace-service",
		"orderId":         "550e8400-e29b-41d4-a716-446655440000",
		"listingId":       "660e8400-e29b-41d4-a716-446655440001",
		"buyerId":         int64(7),
		"sellerId":        int64(9),
		"quantity":        12.5,
		"quantityUnit":    "tCO2e",
		"unitPrice":       80_000.0,
		"amount":          1_000_000.0,
		"currency":        "VND",
		"orderStatus":     "COMPLETED",
		"region":          "Hanoi",
		"isAuction":       false,
		"timestamp":       "2026-02-10T09:00:00Z",
		"statusChangedAt": "2026-02-10T09:05:00Z",
	}

	raw := rawFromJSON(t, event.CategoryTrade, payload)
	evt, err := ingestion.ParseRawMessage(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	te, ok := evt.(*event.TradeEvent)
	if !ok {
		t.Fatalf("expected *event.TradeEvent, got %T", evt)
	}
	if te.OrderID.String() != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("order id: got %s", te.OrderID)
	}
	if te.ListingID == nil {
		t.Fatal("listing id missing")
	}
	if te.Amount != 1_000_000 {
		t.Errorf("amount: got %f, want 1000000", te.Amount)
	}
	if !te.CountsAsExecuted() {
		t.Error("COMPLETED trade should count as executed")
	}
	if !te.StatusChangedAt.After(te.Timestamp) {
		t.Error("statusChangedAt should be parsed independently of timestamp")
	}
}

func TestParseTradeEventBadOrderID(t *testing.T) {
	payload := map[string]interface{}{
		"eventId": "evt-trade-2",
		"orderId": "not-a-uuid",
	}

	raw := rawFromJSON(t, event.CategoryTrade, payload)
	if _, err := ingestion.ParseRawMessage(raw); err == nil {
		t.Fatal("expected error for malformed order id")
	}
}

func TestParsePaymentEventStatusTimestamp(t *testing.T) {
	payload := map[string]interface{}{
		"eventId":     "evt-pay-1",
		"paymentId":   "pay-123",
		"orderId":     "550e8400-e29b-41d4-a716-446655440000",
		"amount":      250_000.0,
		"currency":    "VND",
		"status":      "COMPLETED",
		"initiatedAt": "2026-02-10T10:00:00Z",
		"completedAt": "2026-02-10T10:02:00Z",
		"timestamp":   "2026-02-10T10:02:01Z",
	}

	raw := rawFromJSON(t, event.CategoryPayment, payload)
	evt, err := ingestion.ParseRawMessage(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	pe := evt.(*event.PaymentEvent)
	want := time.Date(2026, 2, 10, 10, 2, 0, 0, time.UTC)
	if !pe.StatusTimestamp().Equal(want) {
		t.Errorf("status timestamp: got %v, want %v (completedAt wins)", pe.StatusTimestamp(), want)
	}
}

func TestParsePaymentEventRequiresPaymentID(t *testing.T) {
	payload := map[string]interface{}{
		"eventId": "evt-pay-2",
		"status":  "FAILED",
	}

	raw := rawFromJSON(t, event.CategoryPayment, payload)
	if _, err := ingestion.ParseRawMessage(raw); err == nil {
		t.Fatal("expected error for missing paymentId")
	}
}

func TestParseIssuanceEventPendingWithoutIssuanceID(t *testing.T) {
	payload := map[string]interface{}{
		"eventId":       "evt-iss-1",
		"requestId":     "req-55",
		"userId":        int64(42),
		"vehicleId":     "vin-001",
		"quantityTco2e": 3.25,
		"status":        "PENDING",
	}

	raw := rawFromJSON(t, event.CategoryIssuance, payload)
	evt, err := ingestion.ParseRawMessage(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	ie := evt.(*event.IssuanceEvent)
	if ie.IssuanceID != "" {
		t.Errorf("issuance id should be empty, got %q", ie.IssuanceID)
	}
	if ie.FactKey() != "req-55" {
		t.Errorf("fact key: got %s, want req-55", ie.FactKey())
	}
}

func TestParseIssuanceEventRequiresSomeKey(t *testing.T) {
	payload := map[string]interface{}{
		"eventId": "evt-iss-2",
		"status":  "PENDING",
	}

	raw := rawFromJSON(t, event.CategoryIssuance, payload)
	if _, err := ingestion.ParseRawMessage(raw); err == nil {
		t.Fatal("expected error when both issuanceId and requestId missing")
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	raw := ingestion.RawMessage{
		Category: event.CategoryTrade,
		Data:     []byte("{not json"),
	}
	if _, err := ingestion.ParseRawMessage(raw); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
