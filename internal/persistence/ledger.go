package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Writer bundles all reporting-store writes behind one DBTX so the claim and
// the fact upserts of a single event share a transaction.
type Writer struct {
	q DBTX
}

func NewWriter(q DBTX) *Writer {
	return &Writer{q: q}
}

// ClaimEvent atomically reserves an event id in the idempotency ledger.
// The unique constraint on consumed_events(event_id) is the sole cross-process
// mutual-exclusion mechanism: exactly one concurrent caller observes
// claimed=true; everyone else gets claimed=false without an error. Ledger rows
// are never updated or deleted; they are the audit trail.
func (w *Writer) ClaimEvent(ctx context.Context, eventID, eventType string, payload []byte) (bool, error) {
	res, err := w.q.ExecContext(ctx, `
		INSERT INTO consumed_events (event_id, event_type, payload, received_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, string(payload), time.Now().UTC())
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IsConsumed reports whether an event id is already in the ledger. Read-only
// peek for diagnostics; ClaimEvent remains the only admission path.
func (w *Writer) IsConsumed(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := w.q.QueryRowContext(ctx,
		`SELECT 1 FROM consumed_events WHERE event_id = $1`, eventID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
