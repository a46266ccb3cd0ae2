package schedule_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"CarbonReporting/internal/observability"
	"CarbonReporting/internal/schedule"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsWith(prometheus.NewRegistry())
}

func TestSchedulerRunsJobsIndependently(t *testing.T) {
	metrics := testMetrics()
	s := schedule.NewScheduler(metrics, zerolog.Nop())

	var fast, slow atomic.Int32
	s.Add(schedule.Job{
		Name:     "fast",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			fast.Add(1)
			return nil
		},
	})
	s.Add(schedule.Job{
		Name:     "slow",
		Interval: 40 * time.Millisecond,
		Run: func(context.Context) error {
			slow.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Wait()

	if fast.Load() < 3 {
		t.Errorf("fast job ran %d times, want >= 3", fast.Load())
	}
	if slow.Load() < 1 {
		t.Errorf("slow job ran %d times, want >= 1", slow.Load())
	}
	if fast.Load() <= slow.Load() {
		t.Errorf("fast (%d) should outrun slow (%d)", fast.Load(), slow.Load())
	}
}

func TestSchedulerRunOnStart(t *testing.T) {
	metrics := testMetrics()
	s := schedule.NewScheduler(metrics, zerolog.Nop())

	ran := make(chan struct{}, 1)
	s.Add(schedule.Job{
		Name:       "immediate",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(context.Context) error {
			select {
			case ran <- struct{}{}:
			default:
			}
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("RunOnStart job did not fire immediately")
	}
	cancel()
	s.Wait()
}

func TestSchedulerSurvivesErrorsAndPanics(t *testing.T) {
	metrics := testMetrics()
	s := schedule.NewScheduler(metrics, zerolog.Nop())

	var runs atomic.Int32
	s.Add(schedule.Job{
		Name:     "flaky",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			n := runs.Add(1)
			switch n {
			case 1:
				return errors.New("transient")
			case 2:
				panic("boom")
			default:
				return nil
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Wait()

	if runs.Load() < 3 {
		t.Fatalf("job stopped rescheduling after failures, ran %d times", runs.Load())
	}
	if got := promtest.ToFloat64(metrics.JobRuns.WithLabelValues("flaky", "FAILED")); got < 2 {
		t.Errorf("failed runs counter: got %f, want >= 2", got)
	}
	if got := promtest.ToFloat64(metrics.JobRuns.WithLabelValues("flaky", "SUCCESS")); got < 1 {
		t.Errorf("success runs counter: got %f, want >= 1", got)
	}
}
