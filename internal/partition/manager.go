package partition

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"CarbonReporting/internal/observability"
)

// CreateAheadMonths is how far past the current month partitions are kept
// pre-created so inserts never race partition DDL.
const CreateAheadMonths = 3

// TableMeta is one row of partition_metadata. LastPartitionDate is the
// range start of the newest partition that exists.
type TableMeta struct {
	TableName         string
	LastPartitionDate time.Time
	RetentionMonths   int
}

// Info describes one child partition of a managed table.
type Info struct {
	Name      string  `json:"name"`
	Table     string  `json:"table"`
	RangeFrom string  `json:"rangeFrom"`
	EstRows   float64 `json:"estRows"`
}

// Manager owns monthly partition DDL for the partitioned fact tables. All
// decisions are driven by partition_metadata; the manager never guesses
// table names. The clock is injected for tests.
type Manager struct {
	db      *sql.DB
	logger  zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewManager(db *sql.DB, metrics *observability.Metrics, logger zerolog.Logger) *Manager {
	return &Manager{
		db:      db,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock overrides the time source. Tests pin the clock to exercise
// create-ahead and retention boundaries deterministically.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Metadata loads all managed-table rows.
func (m *Manager) Metadata(ctx context.Context) ([]TableMeta, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT table_name, last_partition_date, retention_months
		FROM partition_metadata
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("query partition metadata: %w", err)
	}
	defer rows.Close()

	var metas []TableMeta
	for rows.Next() {
		var tm TableMeta
		if err := rows.Scan(&tm.TableName, &tm.LastPartitionDate, &tm.RetentionMonths); err != nil {
			return nil, fmt.Errorf("scan partition metadata: %w", err)
		}
		metas = append(metas, tm)
	}
	return metas, rows.Err()
}

// CreateAhead ensures every managed table has partitions covering today
// through today+CreateAheadMonths, then advances last_partition_date.
// Failures are isolated per table: a failed CREATE is logged and counted,
// the table's boundary advances only past the months that succeeded, and
// the remaining tables are still processed. The first error is returned so
// the scheduler records the run as failed.
func (m *Manager) CreateAhead(ctx context.Context) error {
	metas, err := m.Metadata(ctx)
	if err != nil {
		return err
	}

	now := m.now()
	var firstErr error
	for _, meta := range metas {
		months := MonthsToCreate(meta.LastPartitionDate, now, CreateAheadMonths)
		if len(months) == 0 {
			continue
		}

		// A failed month ends this table's run; creating later months would
		// leave a hole behind the recorded boundary.
		created := 0
		for _, month := range months {
			if err := m.createPartition(ctx, meta.TableName, month); err != nil {
				m.metrics.PartitionOps.WithLabelValues(meta.TableName, "create", "FAILED").Inc()
				m.logger.Error().Err(err).Str("table", meta.TableName).
					Str("month", month.Format("2006-01")).
					Msg("partition create failed, skipping rest of table for this run")
				if firstErr == nil {
					firstErr = err
				}
				break
			}
			m.metrics.PartitionOps.WithLabelValues(meta.TableName, "create", "SUCCESS").Inc()
			created++
		}
		if created == 0 {
			continue
		}

		newLast := months[created-1]
		if _, err := m.db.ExecContext(ctx, `
			UPDATE partition_metadata
			SET last_partition_date = $2, updated_at = NOW()
			WHERE table_name = $1
		`, meta.TableName, newLast); err != nil {
			m.logger.Error().Err(err).Str("table", meta.TableName).Msg("advancing partition metadata failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("advance partition metadata for %s: %w", meta.TableName, err)
			}
			continue
		}

		m.logger.Info().Str("table", meta.TableName).
			Int("created", created).
			Str("through", newLast.Format("2006-01")).
			Msg("partitions created ahead")
	}

	return firstErr
}

// CreateForMonth creates one partition on demand (operator surface). The
// table must be managed; metadata is not advanced because manual creation
// may fill historical gaps behind the recorded boundary.
func (m *Manager) CreateForMonth(ctx context.Context, table string, month time.Time) (string, error) {
	managed, err := m.isManaged(ctx, table)
	if err != nil {
		return "", err
	}
	if !managed {
		return "", fmt.Errorf("table %q is not partition-managed", table)
	}

	month = monthStart(month)
	if err := m.createPartition(ctx, table, month); err != nil {
		m.metrics.PartitionOps.WithLabelValues(table, "create", "FAILED").Inc()
		return "", err
	}
	m.metrics.PartitionOps.WithLabelValues(table, "create", "SUCCESS").Inc()
	return PartitionName(table, month), nil
}

func (m *Manager) isManaged(ctx context.Context, table string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM partition_metadata WHERE table_name = $1`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check managed table: %w", err)
	}
	return n > 0, nil
}

func (m *Manager) createPartition(ctx context.Context, table string, month time.Time) error {
	name := PartitionName(table, month)
	from := month.Format("2006-01-02")
	to := month.AddDate(0, 1, 0).Format("2006-01-02")

	// Table and partition names come from partition_metadata and a
	// formatted date, never from request input.
	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')",
		name, table, from, to,
	)
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create partition %s: %w", name, err)
	}

	m.logger.Info().Str("partition", name).Str("from", from).Str("to", to).Msg("partition created")
	return nil
}

// Retire drops partitions whose whole month lies before the retention
// cutoff of their table. Partitions that fail to parse are skipped, never
// dropped. A failed drop is logged and counted and the sweep moves on to
// the next partition; the first error is returned so the scheduler records
// the run as failed.
func (m *Manager) Retire(ctx context.Context) error {
	metas, err := m.Metadata(ctx)
	if err != nil {
		return err
	}

	now := m.now()
	var firstErr error
	for _, meta := range metas {
		cutoff := monthStart(now).AddDate(0, -meta.RetentionMonths, 0)

		children, err := m.childPartitions(ctx, meta.TableName)
		if err != nil {
			m.logger.Error().Err(err).Str("table", meta.TableName).Msg("listing partitions failed, skipping table")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, child := range children {
			retire, err := ShouldRetire(child, meta.TableName, cutoff)
			if err != nil {
				m.logger.Warn().Err(err).Str("partition", child).Msg("unparseable partition name, skipping")
				continue
			}
			if !retire {
				continue
			}

			if _, err := m.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+child); err != nil {
				m.metrics.PartitionOps.WithLabelValues(meta.TableName, "drop", "FAILED").Inc()
				m.logger.Error().Err(err).Str("partition", child).Msg("partition drop failed, continuing sweep")
				if firstErr == nil {
					firstErr = fmt.Errorf("drop partition %s: %w", child, err)
				}
				continue
			}
			m.metrics.PartitionOps.WithLabelValues(meta.TableName, "drop", "SUCCESS").Inc()
			m.logger.Info().Str("partition", child).
				Str("cutoff", cutoff.Format("2006-01")).
				Msg("expired partition dropped")
		}
	}

	return firstErr
}

func (m *Manager) childPartitions(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT c.relname
		FROM pg_inherits i
		JOIN pg_class c ON c.oid = i.inhrelid
		JOIN pg_class p ON p.oid = i.inhparent
		WHERE p.relname = $1
		ORDER BY c.relname
	`, table)
	if err != nil {
		return nil, fmt.Errorf("list partitions of %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan partition name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// ListInfo returns every child partition of every managed table with its
// planner row estimate.
func (m *Manager) ListInfo(ctx context.Context) ([]Info, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT c.relname, p.relname, c.reltuples
		FROM pg_inherits i
		JOIN pg_class c ON c.oid = i.inhrelid
		JOIN pg_class p ON p.oid = i.inhparent
		JOIN partition_metadata pm ON pm.table_name = p.relname
		ORDER BY p.relname, c.relname
	`)
	if err != nil {
		return nil, fmt.Errorf("list partition info: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var inf Info
		if err := rows.Scan(&inf.Name, &inf.Table, &inf.EstRows); err != nil {
			return nil, fmt.Errorf("scan partition info: %w", err)
		}
		if month, err := PartitionMonth(inf.Name, inf.Table); err == nil {
			inf.RangeFrom = month.Format("2006-01-02")
		}
		infos = append(infos, inf)
	}
	return infos, rows.Err()
}

// PartitionName builds the child table name for a month: table_YYYY_MM.
func PartitionName(table string, month time.Time) string {
	return fmt.Sprintf("%s_%s", table, month.Format("2006_01"))
}

// PartitionMonth parses the _YYYY_MM suffix back into the range start.
func PartitionMonth(name, table string) (time.Time, error) {
	suffix := strings.TrimPrefix(name, table+"_")
	if suffix == name {
		return time.Time{}, fmt.Errorf("partition %q does not belong to table %q", name, table)
	}
	month, err := time.Parse("2006_01", suffix)
	if err != nil {
		return time.Time{}, fmt.Errorf("partition %q has no _YYYY_MM suffix: %w", name, err)
	}
	return month, nil
}

// ShouldRetire reports whether a partition's month lies strictly before the
// cutoff month.
func ShouldRetire(name, table string, cutoff time.Time) (bool, error) {
	month, err := PartitionMonth(name, table)
	if err != nil {
		return false, err
	}
	return month.Before(monthStart(cutoff)), nil
}

// MonthsToCreate lists the partition range starts missing between the last
// created partition and now+ahead months, oldest first.
func MonthsToCreate(last, now time.Time, ahead int) []time.Time {
	target := monthStart(now).AddDate(0, ahead, 0)

	var months []time.Time
	for m := monthStart(last).AddDate(0, 1, 0); !m.After(target); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
