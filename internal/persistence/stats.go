package persistence

import (
	"context"
	"database/sql"
)

// ReportingStats is a point-in-time snapshot of the reporting store, polled
// by the scheduler to back the database-derived gauges.
type ReportingStats struct {
	TotalUsers      int64
	TotalTrades     int64
	TotalIssuances  int64
	ConsumedEvents  int64
	TodayActivities int64
	TradeVolume     float64
	IssuedTCO2e     float64
}

// CollectStats runs the aggregate counts in one round of queries. Each count
// degrades independently: a failing query leaves its field at zero, the rest
// still run, and the partial snapshot is returned alongside the first error
// so callers can publish whatever was collected.
func CollectStats(ctx context.Context, db *sql.DB) (ReportingStats, error) {
	var stats ReportingStats
	var firstErr error

	scan := func(query string, dest any) {
		if err := db.QueryRowContext(ctx, query).Scan(dest); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	scan(`SELECT COUNT(*) FROM dim_users`, &stats.TotalUsers)
	scan(`SELECT COUNT(*) FROM fact_trade`, &stats.TotalTrades)
	scan(`SELECT COUNT(*) FROM fact_issuance`, &stats.TotalIssuances)
	scan(`SELECT COUNT(*) FROM consumed_events`, &stats.ConsumedEvents)
	scan(`SELECT COUNT(*) FROM fact_user_activity WHERE occurred_at > CURRENT_DATE`, &stats.TodayActivities)
	scan(`SELECT COALESCE(SUM(amount), 0) FROM fact_trade`, &stats.TradeVolume)
	scan(`SELECT COALESCE(SUM(quantity_tco2e), 0) FROM fact_issuance WHERE status = 'APPROVED'`, &stats.IssuedTCO2e)

	return stats, firstErr
}
