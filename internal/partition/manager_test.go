package partition_test

import (
	"testing"
	"time"

	"CarbonReporting/internal/partition"
)

func date(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestMonthsToCreate(t *testing.T) {
	// Boundary at Jan, today Feb 14, lookahead 3: need Feb..May.
	now := time.Date(2024, 2, 14, 9, 30, 0, 0, time.UTC)
	months := partition.MonthsToCreate(date(2024, time.January), now, 3)

	want := []time.Time{
		date(2024, time.February),
		date(2024, time.March),
		date(2024, time.April),
		date(2024, time.May),
	}
	if len(months) != len(want) {
		t.Fatalf("months: got %d, want %d (%v)", len(months), len(want), months)
	}
	for i := range want {
		if !months[i].Equal(want[i]) {
			t.Errorf("month %d: got %v, want %v", i, months[i], want[i])
		}
	}
}

func TestMonthsToCreateAlreadyCovered(t *testing.T) {
	// Boundary well past the target: nothing to do.
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	months := partition.MonthsToCreate(date(2024, time.December), now, 3)
	if len(months) != 0 {
		t.Errorf("expected no months, got %v", months)
	}
}

func TestMonthsToCreateExactBoundary(t *testing.T) {
	// Boundary exactly at now+ahead: coverage is complete.
	now := date(2024, time.February)
	months := partition.MonthsToCreate(date(2024, time.May), now, 3)
	if len(months) != 0 {
		t.Errorf("expected no months at exact boundary, got %v", months)
	}

	// One month short: exactly one to create.
	months = partition.MonthsToCreate(date(2024, time.April), now, 3)
	if len(months) != 1 || !months[0].Equal(date(2024, time.May)) {
		t.Errorf("expected [2024-05], got %v", months)
	}
}

func TestPartitionNameRoundTrip(t *testing.T) {
	name := partition.PartitionName("fact_trade", date(2026, time.March))
	if name != "fact_trade_2026_03" {
		t.Fatalf("name: got %s, want fact_trade_2026_03", name)
	}

	month, err := partition.PartitionMonth(name, "fact_trade")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !month.Equal(date(2026, time.March)) {
		t.Errorf("month: got %v, want 2026-03-01", month)
	}
}

func TestPartitionMonthRejectsForeignNames(t *testing.T) {
	if _, err := partition.PartitionMonth("fact_payment_2026_03", "fact_trade"); err == nil {
		t.Error("expected error for partition of a different table")
	}
	if _, err := partition.PartitionMonth("fact_trade_default", "fact_trade"); err == nil {
		t.Error("expected error for non-month suffix")
	}
}

func TestShouldRetire(t *testing.T) {
	cutoff := date(2024, time.January) // retain Jan 2024 and newer

	cases := []struct {
		name   string
		retire bool
	}{
		{"fact_trade_2023_11", true},
		{"fact_trade_2023_12", true},
		{"fact_trade_2024_01", false}, // cutoff month itself stays
		{"fact_trade_2024_02", false},
	}
	for _, tc := range cases {
		got, err := partition.ShouldRetire(tc.name, "fact_trade", cutoff)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.retire {
			t.Errorf("%s: retire=%v, want %v", tc.name, got, tc.retire)
		}
	}
}

func TestShouldRetireUnparseable(t *testing.T) {
	if _, err := partition.ShouldRetire("fact_trade_overflow", "fact_trade", date(2024, time.January)); err == nil {
		t.Error("unparseable partition must error, not silently retire")
	}
}
