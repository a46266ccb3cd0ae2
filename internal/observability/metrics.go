package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the reporting core.
type Metrics struct {
	// --- Consumption ---
	EventsProcessed   *prometheus.CounterVec
	EventsDuplicate   *prometheus.CounterVec
	EventsDeadLetter  *prometheus.CounterVec
	HandleDuration    *prometheus.HistogramVec
	WorkerPoolSize    *prometheus.GaugeVec
	QueueDepth        *prometheus.GaugeVec
	QueueCapacity     *prometheus.GaugeVec

	// --- Business events ---
	UsersRegistered  prometheus.Counter
	UserLogins       prometheus.Counter
	TradesExecuted   prometheus.Counter
	CreditsIssued    prometheus.Counter
	Payments         *prometheus.CounterVec
	ProcessingErrors prometheus.Counter

	// --- Side effects ---
	NotificationsPublished *prometheus.CounterVec
	NotificationsDropped   prometheus.Counter

	// --- View refresh ---
	ViewRefreshes       *prometheus.CounterVec
	ViewRefreshDuration *prometheus.HistogramVec
	ViewLastRefresh     *prometheus.GaugeVec
	ViewRowCount        *prometheus.GaugeVec
	RefreshLogsPruned   prometheus.Counter

	// --- Partition lifecycle ---
	PartitionOps *prometheus.CounterVec

	// --- Scheduler ---
	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// --- Store-derived gauges (stats poller) ---
	TotalUsers      prometheus.Gauge
	TotalTrades     prometheus.Gauge
	TotalIssuances  prometheus.Gauge
	ConsumedEvents  prometheus.Gauge
	TodayActivities prometheus.Gauge
	TradeVolume     prometheus.Gauge
	IssuedTCO2e     prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers the metric set against an explicit registerer.
// Tests use this to avoid duplicate registration on the global registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	handleBuckets := []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}
	refreshBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}

	return &Metrics{
		EventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccm_events_processed_total",
			Help: "Events claimed and applied to the reporting store",
		}, []string{"category"}),

		EventsDuplicate: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccm_events_duplicate_total",
			Help: "Redeliveries rejected by the idempotency ledger",
		}, []string{"category"}),

		EventsDeadLetter: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccm_events_deadletter_total",
			Help: "Messages routed to the dead-letter stream",
		}, []string{"category", "reason"}),

		HandleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ccm_event_handle_duration_seconds",
			Help:    "Claim + upsert + commit time per event",
			Buckets: handleBuckets,
		}, []string{"category"}),

		WorkerPoolSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ccm_worker_pool_size",
			Help: "Active workers per category queue",
		}, []string{"category"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ccm_queue_depth",
			Help: "Buffered messages per category channel",
		}, []string{"category"}),

		QueueCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ccm_queue_capacity",
			Help: "Channel capacity per category (constant)",
		}, []string{"category"}),

		UsersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccm_events_user_registered_total",
			Help: "USER REGISTERED events processed",
		}),

		UserLogins: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccm_events_user_login_total",
			Help: "USER LOGGED_IN events processed",
		}),

		TradesExecuted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccm_events_trade_executed_total",
			Help: "Trades counted as executed (COMPLETED or PENDING_PAYMENT)",
		}),

		CreditsIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccm_events_credit_issued_total",
			Help: "APPROVED issuance events processed",
		}),

		Payments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccm_events_payment_total",
			Help: "Payment events processed by status",
		}, []string{"status"}),

		ProcessingErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccm_event_processing_errors_total",
			Help: "Event processing errors (deserialize + handler + store)",
		}),

		NotificationsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccm_notifications_published_total",
			Help: "Side-effect notifications published",
		}, []string{"level"}),

		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccm_notifications_dropped_total",
			Help: "Notifications dropped due to a full publish channel",
		}),

		ViewRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccm_view_refresh_total",
			Help: "Materialized view refresh attempts by outcome",
		}, []string{"view", "status"}),

		ViewRefreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ccm_view_refresh_duration_seconds",
			Help:    "Materialized view rebuild time",
			Buckets: refreshBuckets,
		}, []string{"view"}),

		ViewLastRefresh: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ccm_view_last_successful_refresh_timestamp_seconds",
			Help: "Unix time of the last successful refresh per view",
		}, []string{"view"}),

		ViewRowCount: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ccm_view_row_count",
			Help: "Row count observed at the last successful refresh",
		}, []string{"view"}),

		RefreshLogsPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "ccm_refresh_logs_pruned_total",
			Help: "Refresh-log rows deleted by the retention job",
		}),

		PartitionOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccm_partition_ops_total",
			Help: "Partition create/drop operations by outcome",
		}, []string{"table", "op", "status"}),

		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ccm_job_runs_total",
			Help: "Scheduled job executions by outcome",
		}, []string{"job", "status"}),

		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ccm_job_duration_seconds",
			Help:    "Scheduled job wall time",
			Buckets: refreshBuckets,
		}, []string{"job"}),

		TotalUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ccm_users_total",
			Help: "Rows in dim_users",
		}),

		TotalTrades: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ccm_trades_total",
			Help: "Rows in fact_trade",
		}),

		TotalIssuances: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ccm_issuances_total",
			Help: "Rows in fact_issuance",
		}),

		ConsumedEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ccm_consumed_events_total",
			Help: "Rows in the idempotency ledger",
		}),

		TodayActivities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ccm_activities_today",
			Help: "User activity rows recorded today",
		}),

		TradeVolume: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ccm_trade_volume_total",
			Help: "SUM(amount) over fact_trade (VND)",
		}),

		IssuedTCO2e: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ccm_carbon_credits_issued_tco2e",
			Help: "SUM(quantity_tco2e) over approved issuances",
		}),
	}
}

// SetQueueMetrics updates the depth/capacity gauges for a category channel.
func (m *Metrics) SetQueueMetrics(category string, depth, capacity int) {
	m.QueueDepth.WithLabelValues(category).Set(float64(depth))
	m.QueueCapacity.WithLabelValues(category).Set(float64(capacity))
}
