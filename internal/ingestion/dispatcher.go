package ingestion

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"CarbonReporting/internal/event"
	"CarbonReporting/internal/handler"
	"CarbonReporting/internal/notify"
	"CarbonReporting/internal/observability"
)

// Processor runs the transactional part of event handling: ledger claim,
// fact/dimension writes, commit. Implemented by handler.TxProcessor;
// dispatcher tests substitute a fake.
type Processor interface {
	Process(ctx context.Context, evt event.Event, raw []byte) (handler.Outcome, []handler.SideEffect, error)
}

// DeadLetter routes an unprocessable message off the main stream.
type DeadLetter interface {
	Publish(ctx context.Context, category event.Category, data []byte) error
}

// Notifier accepts side-effect notifications for asynchronous publishing.
type Notifier interface {
	Enqueue(n notify.Notification) bool
}

const (
	// Worker pool bounds per category.
	minWorkers = 2
	maxWorkers = 8

	// Extra workers exit after this long without a message.
	workerIdleTimeout = 10 * time.Second

	scaleInterval = time.Second
)

// Dispatcher consumes one category's raw messages with a bounded elastic
// worker pool. Each message walks a fixed progression: received,
// deserialized, claimed or duplicate, processed or failed. Duplicates and
// processed messages ack; a deserialization or handler failure dead-letters
// the raw payload and terminates delivery so the broker never requeues a
// poison message.
type Dispatcher struct {
	category event.Category
	ch       chan RawMessage
	proc     Processor
	dlq      DeadLetter
	notifier Notifier
	metrics  *observability.Metrics
	logger   zerolog.Logger

	workers atomic.Int32
	wg      sync.WaitGroup
}

func NewDispatcher(
	category event.Category,
	ch chan RawMessage,
	proc Processor,
	dlq DeadLetter,
	notifier Notifier,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		category: category,
		ch:       ch,
		proc:     proc,
		dlq:      dlq,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With().Str("category", category.String()).Logger(),
	}
}

// Run starts the baseline workers and the scaling loop, then blocks until
// ctx is cancelled and all workers drained.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < minWorkers; i++ {
		d.spawn(ctx, false)
	}

	ticker := time.NewTicker(scaleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			d.logger.Info().Msg("dispatcher stopped")
			return
		case <-ticker.C:
			d.metrics.SetQueueMetrics(d.category.String(), len(d.ch), cap(d.ch))
			if d.shouldScaleUp() {
				d.spawn(ctx, true)
			}
		}
	}
}

// shouldScaleUp adds a worker while the queue is more than half full and the
// pool is below its cap.
func (d *Dispatcher) shouldScaleUp() bool {
	return len(d.ch) > cap(d.ch)/2 && int(d.workers.Load()) < maxWorkers
}

func (d *Dispatcher) spawn(ctx context.Context, elastic bool) {
	n := d.workers.Add(1)
	d.metrics.WorkerPoolSize.WithLabelValues(d.category.String()).Set(float64(n))

	d.wg.Add(1)
	go func() {
		defer func() {
			left := d.workers.Add(-1)
			d.metrics.WorkerPoolSize.WithLabelValues(d.category.String()).Set(float64(left))
			d.wg.Done()
		}()

		if elastic {
			d.elasticWorker(ctx)
		} else {
			d.worker(ctx)
		}
	}()
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-d.ch:
			if !ok {
				return
			}
			d.handle(ctx, msg)
		}
	}
}

// elasticWorker is a worker that retires itself after an idle stretch.
func (d *Dispatcher) elasticWorker(ctx context.Context) {
	idle := time.NewTimer(workerIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			return
		case msg, ok := <-d.ch:
			if !ok {
				return
			}
			d.handle(ctx, msg)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(workerIdleTimeout)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg RawMessage) {
	start := time.Now()
	category := d.category.String()

	evt, err := ParseRawMessage(msg)
	if err != nil {
		d.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("deserialization failed, dead-lettering")
		d.metrics.ProcessingErrors.Inc()
		d.deadLetter(ctx, msg, "deserialize")
		return
	}

	outcome, effects, err := d.proc.Process(ctx, evt, msg.Data)
	if err != nil {
		d.logger.Error().Err(err).Str("event_id", evt.EventID()).Msg("handler failed, dead-lettering")
		d.metrics.ProcessingErrors.Inc()
		d.deadLetter(ctx, msg, "handler")
		return
	}

	if outcome == handler.OutcomeDuplicate {
		d.metrics.EventsDuplicate.WithLabelValues(category).Inc()
		d.logger.Debug().Str("event_id", evt.EventID()).Msg("duplicate event acked")
		d.ack(msg)
		return
	}

	// Commit happened; effects are now safe to surface.
	d.applyEffects(effects)

	d.metrics.EventsProcessed.WithLabelValues(category).Inc()
	d.metrics.HandleDuration.WithLabelValues(category).Observe(time.Since(start).Seconds())
	d.ack(msg)
}

func (d *Dispatcher) applyEffects(effects []handler.SideEffect) {
	for _, eff := range effects {
		switch eff.Counter {
		case handler.CounterUserRegistered:
			d.metrics.UsersRegistered.Inc()
		case handler.CounterUserLogin:
			d.metrics.UserLogins.Inc()
		case handler.CounterTradeExecuted:
			d.metrics.TradesExecuted.Inc()
		case handler.CounterCreditIssued:
			d.metrics.CreditsIssued.Inc()
		case handler.CounterPayment:
			d.metrics.Payments.WithLabelValues(eff.Label).Inc()
		}

		if eff.Notification != nil {
			if d.notifier.Enqueue(*eff.Notification) {
				d.metrics.NotificationsPublished.WithLabelValues(eff.Notification.Level).Inc()
			} else {
				d.metrics.NotificationsDropped.Inc()
			}
		}
	}
}

// deadLetter copies the raw payload to the DLQ stream, then terminates the
// original delivery. If the DLQ publish itself fails the message is left
// unacked so the broker redelivers it after the ack wait.
func (d *Dispatcher) deadLetter(ctx context.Context, msg RawMessage, reason string) {
	if err := d.dlq.Publish(ctx, msg.Category, msg.Data); err != nil {
		d.logger.Error().Err(err).Msg("dead-letter publish failed, leaving message for redelivery")
		return
	}

	d.metrics.EventsDeadLetter.WithLabelValues(d.category.String(), reason).Inc()
	if msg.Term != nil {
		if err := msg.Term(); err != nil {
			d.logger.Warn().Err(err).Msg("term failed")
		}
	}
}

func (d *Dispatcher) ack(msg RawMessage) {
	if msg.Ack == nil {
		return
	}
	if err := msg.Ack(); err != nil {
		d.logger.Warn().Err(err).Msg("ack failed")
	}
}
