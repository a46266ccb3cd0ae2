package partition_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"CarbonReporting/internal/observability"
	"CarbonReporting/internal/partition"
	"CarbonReporting/internal/testutil"
)

func TestCreateAheadExtendsAllManagedTables(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	m := partition.NewManager(db, metrics, zerolog.Nop())

	// Pin the clock right after the seeded boundary so there is work to do.
	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return now })

	if err := m.CreateAhead(ctx); err != nil {
		t.Fatalf("create ahead: %v", err)
	}

	metas, err := m.Metadata(ctx)
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	wantBoundary := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	for _, meta := range metas {
		if !meta.LastPartitionDate.Equal(wantBoundary) {
			t.Errorf("%s boundary: got %v, want %v", meta.TableName, meta.LastPartitionDate, wantBoundary)
		}
	}

	// The October partition must exist for inserts.
	var exists bool
	err = db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = 'fact_trade_2026_10')
	`).Scan(&exists)
	if err != nil {
		t.Fatalf("check partition: %v", err)
	}
	if !exists {
		t.Error("fact_trade_2026_10 should exist after create-ahead")
	}

	// Running again is a no-op, not an error.
	if err := m.CreateAhead(ctx); err != nil {
		t.Fatalf("idempotent create ahead: %v", err)
	}
}

func TestManualCreateAndList(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	m := partition.NewManager(db, metrics, zerolog.Nop())

	name, err := m.CreateForMonth(ctx, "fact_trade", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create for month: %v", err)
	}
	if name != "fact_trade_2025_12" {
		t.Errorf("name: got %s, want fact_trade_2025_12", name)
	}

	if _, err := m.CreateForMonth(ctx, "dim_users", time.Now()); err == nil {
		t.Error("unmanaged table must be rejected")
	}

	infos, err := m.ListInfo(ctx)
	if err != nil {
		t.Fatalf("list info: %v", err)
	}
	found := false
	for _, inf := range infos {
		if inf.Name == "fact_trade_2025_12" {
			found = true
			if inf.RangeFrom != "2025-12-01" {
				t.Errorf("range from: got %s", inf.RangeFrom)
			}
		}
	}
	if !found {
		t.Error("manually created partition missing from listing")
	}
}

func TestRetireDropsExpiredPartitions(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	m := partition.NewManager(db, metrics, zerolog.Nop())

	// Create a partition far in the past.
	if _, err := m.CreateForMonth(ctx, "fact_trade", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("create old partition: %v", err)
	}

	// fact_trade retains 24 months; 2020-01 is far beyond that.
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return now })

	if err := m.Retire(ctx); err != nil {
		t.Fatalf("retire: %v", err)
	}

	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = 'fact_trade_2020_01')
	`).Scan(&exists)
	if err != nil {
		t.Fatalf("check partition: %v", err)
	}
	if exists {
		t.Error("expired partition should have been dropped")
	}

	// Partitions inside the retention window survive.
	err = db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = 'fact_trade_2026_01')
	`).Scan(&exists)
	if err != nil {
		t.Fatalf("check partition: %v", err)
	}
	if !exists {
		t.Error("partition within retention must survive")
	}
}

func TestCreateAheadContinuesPastFailingTable(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	m := partition.NewManager(db, metrics, zerolog.Nop())

	// A metadata row whose parent table does not exist. It sorts before the
	// real tables, so every sibling is processed after the failure.
	if _, err := db.ExecContext(ctx, `
		INSERT INTO partition_metadata (table_name, last_partition_date, retention_months)
		VALUES ('fact_aaa_broken', '2026-06-01', 24)
	`); err != nil {
		t.Fatalf("seed broken metadata: %v", err)
	}
	defer db.ExecContext(ctx, `DELETE FROM partition_metadata WHERE table_name = 'fact_aaa_broken'`)

	now := time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return now })

	if err := m.CreateAhead(ctx); err == nil {
		t.Fatal("create-ahead must report the failing table")
	}

	// The failure is isolated: the healthy tables still got their partitions
	// and their boundaries advanced.
	var exists bool
	if err := db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = 'fact_trade_2026_10')
	`).Scan(&exists); err != nil {
		t.Fatalf("check partition: %v", err)
	}
	if !exists {
		t.Error("healthy tables must still get partitions when one table fails")
	}

	var boundary time.Time
	if err := db.QueryRowContext(ctx, `
		SELECT last_partition_date FROM partition_metadata WHERE table_name = 'fact_trade'
	`).Scan(&boundary); err != nil {
		t.Fatalf("read boundary: %v", err)
	}
	want := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	if !boundary.Equal(want) {
		t.Errorf("fact_trade boundary: got %v, want %v", boundary, want)
	}

	// The failing table's boundary never moves.
	if err := db.QueryRowContext(ctx, `
		SELECT last_partition_date FROM partition_metadata WHERE table_name = 'fact_aaa_broken'
	`).Scan(&boundary); err != nil {
		t.Fatalf("read broken boundary: %v", err)
	}
	if !boundary.Equal(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("failing table's boundary must not advance, got %v", boundary)
	}
}

func TestRetireContinuesPastUndroppablePartition(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	m := partition.NewManager(db, metrics, zerolog.Nop())

	for _, month := range []time.Time{
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
	} {
		if _, err := m.CreateForMonth(ctx, "fact_trade", month); err != nil {
			t.Fatalf("create old partition: %v", err)
		}
	}

	// A dependent view makes the older partition undroppable.
	if _, err := db.ExecContext(ctx,
		`CREATE VIEW fact_trade_2020_01_dep AS SELECT * FROM fact_trade_2020_01`); err != nil {
		t.Fatalf("create dependent view: %v", err)
	}
	defer db.ExecContext(ctx, `DROP TABLE IF EXISTS fact_trade_2020_01`)
	defer db.ExecContext(ctx, `DROP VIEW IF EXISTS fact_trade_2020_01_dep`)

	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	m.WithClock(func() time.Time { return now })

	if err := m.Retire(ctx); err == nil {
		t.Fatal("retire must report the undroppable partition")
	}

	// The sweep carried on: the next expired partition is gone.
	var exists bool
	if err := db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = 'fact_trade_2020_02')
	`).Scan(&exists); err != nil {
		t.Fatalf("check partition: %v", err)
	}
	if exists {
		t.Error("sweep must continue past a failed drop")
	}

	if err := db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM pg_class WHERE relname = 'fact_trade_2020_01')
	`).Scan(&exists); err != nil {
		t.Fatalf("check partition: %v", err)
	}
	if !exists {
		t.Error("undroppable partition should still be present")
	}
}
