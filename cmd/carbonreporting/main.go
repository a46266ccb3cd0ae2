package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"CarbonReporting/internal/admin"
	"CarbonReporting/internal/config"
	"CarbonReporting/internal/event"
	"CarbonReporting/internal/handler"
	"CarbonReporting/internal/ingestion"
	"CarbonReporting/internal/notify"
	"CarbonReporting/internal/observability"
	"CarbonReporting/internal/partition"
	"CarbonReporting/internal/persistence"
	"CarbonReporting/internal/refresh"
	"CarbonReporting/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("INFO: CarbonReporting starting...")

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CCM_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("FATAL: load config: %v", err)
	}

	logger := observability.NewLogger("main")

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := persistence.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("FATAL: postgres connect: %v", err)
	}
	defer db.Close()
	log.Println("INFO: Postgres connected")

	if err := persistence.NewMigrator(db).Up(ctx); err != nil {
		log.Fatalf("FATAL: run migrations: %v", err)
	}
	log.Println("INFO: migrations applied")

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("FATAL: nats connect: %v", err)
	}
	defer nc.Close()
	log.Println("INFO: NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure NATS streams: %v", err)
	}
	if err := notify.EnsureNotificationStream(ctx, js); err != nil {
		log.Fatalf("FATAL: ensure notifications stream: %v", err)
	}

	errChan := make(chan error, 10)

	// --- Notification publisher ---
	notifier := notify.NewPublisher(js, cfg.NotifyBuffer)
	go func() {
		errChan <- notifier.Run(ctx)
	}()

	// --- Consumer dispatch, one pool per category ---
	processor := handler.NewTxProcessor(db)
	deadLetterer := ingestion.NewDeadLetterer(js)

	channels := make(map[event.Category]chan<- ingestion.RawMessage)
	var dispatcherWG sync.WaitGroup
	for _, category := range event.Categories() {
		ch := make(chan ingestion.RawMessage, cfg.QueueCapacity)
		channels[category] = ch

		d := ingestion.NewDispatcher(
			category, ch, processor, deadLetterer, notifier,
			metrics, observability.NewLogger("dispatcher"),
		)
		dispatcherWG.Add(1)
		go func() {
			defer dispatcherWG.Done()
			d.Run(ctx)
		}()
	}

	// --- Maintenance ---
	refresher := refresh.NewRefresher(db, metrics, observability.NewLogger("refresh"))
	partitions := partition.NewManager(db, metrics, observability.NewLogger("partition"))

	// Partitions should cover the current month before any event is consumed.
	// A per-table failure is already logged and isolated inside CreateAhead,
	// so a startup failure degrades to a warning and the scheduled job retries.
	if err := partitions.CreateAhead(ctx); err != nil {
		log.Printf("WARN: partition create-ahead: %v", err)
	}

	subscriber := ingestion.NewSubscriber(js, channels)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultStreams()); err != nil {
		log.Fatalf("FATAL: nats subscribe: %v", err)
	}

	scheduler := schedule.NewScheduler(metrics, observability.NewLogger("scheduler"))
	scheduler.Add(schedule.Job{
		Name:     "refresh-hourly",
		Interval: cfg.Refresh.HourlyInterval,
		Run: func(ctx context.Context) error {
			// Blocking pass, aborts on the first failing view.
			_, err := refresher.RefreshAll(ctx, false, false)
			return err
		},
	})
	scheduler.Add(schedule.Job{
		Name:     "refresh-nightly-concurrent",
		Interval: cfg.Refresh.NightlyInterval,
		Run: func(ctx context.Context) error {
			// Non-blocking pass, rebuilds whatever it can.
			_, err := refresher.RefreshAll(ctx, true, true)
			return err
		},
	})
	scheduler.Add(schedule.Job{
		Name:     "refresh-log-prune",
		Interval: cfg.Refresh.PruneInterval,
		Run: func(ctx context.Context) error {
			_, err := refresher.PruneLogs(ctx, cfg.Refresh.PruneKeep)
			return err
		},
	})
	scheduler.Add(schedule.Job{
		Name:     "partition-create-ahead",
		Interval: cfg.Partition.CreateAheadInterval,
		Run:      partitions.CreateAhead,
	})
	scheduler.Add(schedule.Job{
		Name:     "partition-retire",
		Interval: cfg.Partition.RetireInterval,
		Run:      partitions.Retire,
	})
	scheduler.Add(schedule.Job{
		Name:       "stats-poll",
		Interval:   cfg.StatsInterval,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			// The snapshot is partial on error; gauges for the counts that
			// did succeed are still published.
			stats, err := persistence.CollectStats(ctx, db)
			metrics.TotalUsers.Set(float64(stats.TotalUsers))
			metrics.TotalTrades.Set(float64(stats.TotalTrades))
			metrics.TotalIssuances.Set(float64(stats.TotalIssuances))
			metrics.ConsumedEvents.Set(float64(stats.ConsumedEvents))
			metrics.TodayActivities.Set(float64(stats.TodayActivities))
			metrics.TradeVolume.Set(stats.TradeVolume)
			metrics.IssuedTCO2e.Set(stats.IssuedTCO2e)
			return err
		},
	})
	scheduler.Start(ctx)

	// --- Admin server ---
	adminServer := admin.NewServer(cfg.AdminAddr, refresher, partitions, observability.NewLogger("admin"))
	go func() {
		errChan <- adminServer.Run(ctx)
	}()

	// --- Metrics + probes server ---
	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsMux.HandleFunc("/healthz", healthChecker.LivenessHandler)
		metricsMux.HandleFunc("/readyz", healthChecker.ReadinessHandler)
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: metricsMux,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Printf("INFO: metrics server listening on %s/metrics", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	healthChecker.SetReady(true)
	logger.Info().
		Str("admin", cfg.AdminAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("CarbonReporting ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Printf("INFO: received signal %s, shutting down...", sig)
	case err := <-errChan:
		log.Printf("ERROR: goroutine failed: %v, shutting down...", err)
	}

	// --- Graceful shutdown ---
	healthChecker.SetReady(false)
	subscriber.Stop()
	cancel()

	done := make(chan struct{})
	go func() {
		dispatcherWG.Wait()
		scheduler.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("INFO: shutdown complete")
	case <-time.After(30 * time.Second):
		log.Println("WARN: shutdown timed out, exiting anyway")
	}
}
