package handler

import (
	"context"
	"database/sql"
	"fmt"

	"CarbonReporting/internal/event"
	"CarbonReporting/internal/persistence"
)

// Outcome of processing a single event.
type Outcome int

const (
	// OutcomeProcessed means the event was claimed and its writes committed.
	OutcomeProcessed Outcome = iota
	// OutcomeDuplicate means the ledger already held the event id.
	OutcomeDuplicate
)

// TxProcessor runs the claim + handler writes of one event inside a single
// database transaction. A crash anywhere before commit rolls back the claim
// too, so redelivery reprocesses the event cleanly. Side effects are only
// returned once the transaction committed.
type TxProcessor struct {
	db *sql.DB
}

func NewTxProcessor(db *sql.DB) *TxProcessor {
	return &TxProcessor{db: db}
}

func (p *TxProcessor) Process(ctx context.Context, evt event.Event, raw []byte) (Outcome, []SideEffect, error) {
	outcome := OutcomeProcessed
	var effects []SideEffect

	err := persistence.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		w := persistence.NewWriter(tx)

		claimed, err := w.ClaimEvent(ctx, evt.EventID(), evt.Category().LedgerType(), raw)
		if err != nil {
			return fmt.Errorf("claim event %s: %w", evt.EventID(), err)
		}
		if !claimed {
			outcome = OutcomeDuplicate
			return nil
		}

		effects, err = Dispatch(ctx, w, evt)
		return err
	})
	if err != nil {
		return OutcomeProcessed, nil, err
	}
	if outcome == OutcomeDuplicate {
		return OutcomeDuplicate, nil, nil
	}
	return OutcomeProcessed, effects, nil
}
