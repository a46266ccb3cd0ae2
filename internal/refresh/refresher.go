package refresh

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CarbonReporting/internal/observability"
)

// Views is the closed registry of managed materialized views. Every view
// carries a unique index, so CONCURRENTLY is available for all of them.
var Views = []string{
	"mv_trades_daily",
	"mv_issuance_daily",
	"mv_payments_daily",
	"mv_user_activity_daily",
}

// StaleThreshold is how old the newest successful refresh may be before a
// view is reported stale.
const StaleThreshold = 2 * time.Hour

// IsManagedView guards against refreshing arbitrary identifiers; view names
// are interpolated into DDL and must come from the registry.
func IsManagedView(name string) bool {
	for _, v := range Views {
		if v == name {
			return true
		}
	}
	return false
}

// Result describes one completed refresh.
type Result struct {
	View       string        `json:"view"`
	Concurrent bool          `json:"concurrent"`
	Duration   time.Duration `json:"durationMs"`
	Rows       int64         `json:"rows"`
}

// LogEntry is a row from mv_refresh_log.
type LogEntry struct {
	ID          int64      `json:"id"`
	View        string     `json:"view"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Status      string     `json:"status"`
	Rows        *int64     `json:"rows,omitempty"`
	Error       *string    `json:"error,omitempty"`
}

// StaleView reports a view whose data is older than the threshold.
type StaleView struct {
	View        string     `json:"view"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
}

// Refresher rebuilds materialized views and audits every attempt in
// mv_refresh_log. A refresh writes a RUNNING row first, so an operator can
// see rebuilds in flight and crashed ones stay visible as RUNNING rows that
// never completed.
type Refresher struct {
	db      *sql.DB
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewRefresher(db *sql.DB, metrics *observability.Metrics, logger zerolog.Logger) *Refresher {
	return &Refresher{
		db:      db,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// RefreshView rebuilds one view. Concurrent mode trades speed for
// availability: readers see the old data until the swap instead of blocking.
func (r *Refresher) RefreshView(ctx context.Context, name string, concurrent bool) (Result, error) {
	if !IsManagedView(name) {
		return Result{}, fmt.Errorf("unknown materialized view %q", name)
	}

	started := r.now()
	var logID int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO mv_refresh_log (mv_name, refresh_started_at, status)
		VALUES ($1, $2, 'RUNNING')
		RETURNING id
	`, name, started).Scan(&logID)
	if err != nil {
		return Result{}, fmt.Errorf("open refresh log for %s: %w", name, err)
	}

	stmt := "REFRESH MATERIALIZED VIEW " + name
	if concurrent {
		stmt = "REFRESH MATERIALIZED VIEW CONCURRENTLY " + name
	}

	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		r.closeLogFailed(ctx, logID, err)
		r.metrics.ViewRefreshes.WithLabelValues(name, "FAILED").Inc()
		r.logger.Error().Err(err).Str("view", name).Msg("materialized view refresh failed")
		return Result{}, fmt.Errorf("refresh %s: %w", name, err)
	}

	var rows int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+name).Scan(&rows); err != nil {
		// Refresh already succeeded; the count is informational only.
		r.logger.Warn().Err(err).Str("view", name).Msg("row count after refresh failed")
		rows = -1
	}

	completed := r.now()
	duration := completed.Sub(started)
	if _, err := r.db.ExecContext(ctx, `
		UPDATE mv_refresh_log
		SET status = 'SUCCESS', refresh_completed_at = $2, rows_affected = $3
		WHERE id = $1
	`, logID, completed, rows); err != nil {
		r.logger.Warn().Err(err).Str("view", name).Msg("closing refresh log failed")
	}

	r.metrics.ViewRefreshes.WithLabelValues(name, "SUCCESS").Inc()
	r.metrics.ViewRefreshDuration.WithLabelValues(name).Observe(duration.Seconds())
	r.metrics.ViewLastRefresh.WithLabelValues(name).Set(float64(completed.Unix()))
	if rows >= 0 {
		r.metrics.ViewRowCount.WithLabelValues(name).Set(float64(rows))
	}
	r.logger.Info().Str("view", name).Bool("concurrent", concurrent).
		Dur("duration", duration).Int64("rows", rows).Msg("materialized view refreshed")

	return Result{View: name, Concurrent: concurrent, Duration: duration, Rows: rows}, nil
}

func (r *Refresher) closeLogFailed(ctx context.Context, logID int64, cause error) {
	msg := cause.Error()
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	if _, err := r.db.ExecContext(ctx, `
		UPDATE mv_refresh_log
		SET status = 'FAILED', refresh_completed_at = $2, error_message = $3
		WHERE id = $1
	`, logID, r.now(), msg); err != nil {
		r.logger.Warn().Err(err).Int64("log_id", logID).Msg("closing failed refresh log failed")
	}
}

// RefreshAll rebuilds every registered view in order. With continueOnError
// false (the hourly blocking pass) the first failure aborts the run; the
// nightly concurrent pass sets it true and rebuilds whatever it can.
func (r *Refresher) RefreshAll(ctx context.Context, concurrent, continueOnError bool) ([]Result, error) {
	var results []Result
	var firstErr error

	for _, view := range Views {
		res, err := r.RefreshView(ctx, view, concurrent)
		if err != nil {
			if !continueOnError {
				return results, err
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, res)
	}

	return results, firstErr
}

// History returns the most recent log entries for one view, newest first.
func (r *Refresher) History(ctx context.Context, view string, limit int) ([]LogEntry, error) {
	if !IsManagedView(view) {
		return nil, fmt.Errorf("unknown materialized view %q", view)
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mv_name, refresh_started_at, refresh_completed_at,
		       status, rows_affected, error_message
		FROM mv_refresh_log
		WHERE mv_name = $1
		ORDER BY refresh_started_at DESC
		LIMIT $2
	`, view, limit)
	if err != nil {
		return nil, fmt.Errorf("query refresh history: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.View, &e.StartedAt, &e.CompletedAt, &e.Status, &e.Rows, &e.Error); err != nil {
			return nil, fmt.Errorf("scan refresh history: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastSuccesses returns the newest successful refresh per view. Views that
// never succeeded are absent from the map.
func (r *Refresher) LastSuccesses(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT mv_name, MAX(refresh_completed_at)
		FROM mv_refresh_log
		WHERE status = 'SUCCESS'
		GROUP BY mv_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query last successes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, fmt.Errorf("scan last success: %w", err)
		}
		out[name] = at
	}
	return out, rows.Err()
}

// StaleViews lists registered views whose last success is older than the
// threshold, including views that never refreshed successfully.
func (r *Refresher) StaleViews(ctx context.Context) ([]StaleView, error) {
	last, err := r.LastSuccesses(ctx)
	if err != nil {
		return nil, err
	}
	return FindStale(Views, last, r.now(), StaleThreshold), nil
}

// FindStale is the pure staleness rule: a view is stale when it has no
// successful refresh at all, or its newest one is older than the threshold.
func FindStale(views []string, lastSuccess map[string]time.Time, now time.Time, threshold time.Duration) []StaleView {
	var stale []StaleView
	cutoff := now.Add(-threshold)
	for _, v := range views {
		at, ok := lastSuccess[v]
		if !ok {
			stale = append(stale, StaleView{View: v})
			continue
		}
		if at.Before(cutoff) {
			t := at
			stale = append(stale, StaleView{View: v, LastSuccess: &t})
		}
	}
	return stale
}

// PruneLogs deletes refresh-log rows beyond the newest keep entries per
// view. Returns the number of deleted rows.
func (r *Refresher) PruneLogs(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		keep = 100
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM mv_refresh_log
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (
					PARTITION BY mv_name ORDER BY refresh_started_at DESC
				) AS rn
				FROM mv_refresh_log
			) ranked
			WHERE ranked.rn > $1
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune refresh logs: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		r.metrics.RefreshLogsPruned.Add(float64(deleted))
		r.logger.Info().Int64("deleted", deleted).Int("keep", keep).Msg("refresh logs pruned")
	}
	return deleted, nil
}
