package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"CarbonReporting/internal/event"
)

// Subscriber creates JetStream consumers for the four business-event
// categories and feeds raw messages into per-category channels owned by the
// dispatchers. Each category has its own stream so a slow consumer in one
// category never backs up the others.
type Subscriber struct {
	js        jetstream.JetStream
	channels  map[event.Category]chan<- RawMessage
	consumers []jetstream.ConsumeContext
}

// RawMessage is a broker delivery before deserialization. Ack and Term wrap
// the underlying JetStream message so the dispatcher never touches the
// broker API directly. Term ends redelivery; failed messages go to the
// dead-letter stream instead of being requeued.
type RawMessage struct {
	Category event.Category
	Subject  string
	Data     []byte
	Received time.Time
	Ack      func() error
	Term     func() error
}

// StreamConfig maps a category to its stream, subject and durable consumer.
type StreamConfig struct {
	Category     event.Category
	StreamName   string
	Subject      string
	ConsumerName string
}

// DefaultStreams returns the standard per-category stream layout.
func DefaultStreams() []StreamConfig {
	return []StreamConfig{
		{Category: event.CategoryUser, StreamName: "CO2_USER", Subject: "co2.user.>", ConsumerName: "reporting-user"},
		{Category: event.CategoryTrade, StreamName: "CO2_TRADE", Subject: "co2.trade.>", ConsumerName: "reporting-trade"},
		{Category: event.CategoryPayment, StreamName: "CO2_PAYMENT", Subject: "co2.payment.>", ConsumerName: "reporting-payment"},
		{Category: event.CategoryIssuance, StreamName: "CO2_ISSUANCE", Subject: "co2.issuance.>", ConsumerName: "reporting-issuance"},
	}
}

// DeadLetterStream is the stream failed messages are republished to.
const DeadLetterStream = "CO2_EVENTS_DLX"

// deadLetterSubjectPrefix + category name forms the DLQ subject.
const deadLetterSubjectPrefix = "co2.dlx."

func NewSubscriber(js jetstream.JetStream, channels map[event.Category]chan<- RawMessage) *Subscriber {
	return &Subscriber{
		js:       js,
		channels: channels,
	}
}

// Subscribe creates a durable consumer per configured stream and starts
// delivery. Consumers use explicit ack with a deliberately high MaxDeliver;
// the dispatcher terminates poison messages itself, so redelivery only
// happens on ack-wait expiry (crash mid-flight).
func (s *Subscriber) Subscribe(ctx context.Context, configs []StreamConfig) error {
	for _, cfg := range configs {
		ch, ok := s.channels[cfg.Category]
		if !ok {
			return fmt.Errorf("no dispatch channel for category %s", cfg.Category)
		}

		consumer, err := s.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		category := cfg.Category
		consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawMessage{
				Category: category,
				Subject:  msg.Subject(),
				Data:     msg.Data(),
				Received: time.Now(),
				Ack:      msg.Ack,
				Term:     msg.Term,
			}

			select {
			case ch <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		s.consumers = append(s.consumers, consumeCtx)
		log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject, cfg.ConsumerName)
	}

	return nil
}

// Stop gracefully stops all consumers.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	log.Println("INFO: ingestion consumers stopped")
}

// DeadLetterer republishes failed raw messages to the dead-letter stream so
// they survive termination of the original delivery.
type DeadLetterer struct {
	js jetstream.JetStream
}

func NewDeadLetterer(js jetstream.JetStream) *DeadLetterer {
	return &DeadLetterer{js: js}
}

// Publish copies a failed message onto the DLQ subject for its category.
func (d *DeadLetterer) Publish(ctx context.Context, category event.Category, data []byte) error {
	subject := deadLetterSubjectPrefix + categorySubjectToken(category)
	if _, err := d.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("dead-letter publish %s: %w", subject, err)
	}
	return nil
}

func categorySubjectToken(c event.Category) string {
	switch c {
	case event.CategoryUser:
		return "user"
	case event.CategoryTrade:
		return "trade"
	case event.CategoryPayment:
		return "payment"
	case event.CategoryIssuance:
		return "issuance"
	default:
		return "unknown"
	}
}

// EnsureStreams creates the inbound streams and the dead-letter stream if
// they don't exist. Inbound streams keep 72h of events; the DLQ keeps 30
// days so operators have time to inspect and replay.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      "CO2_USER",
			Subjects:  []string{"co2.user.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CO2_TRADE",
			Subjects:  []string{"co2.trade.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CO2_PAYMENT",
			Subjects:  []string{"co2.payment.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      "CO2_ISSUANCE",
			Subjects:  []string{"co2.issuance.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      DeadLetterStream,
			Subjects:  []string{"co2.dlx.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    30 * 24 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Printf("INFO: ensured stream %s", cfg.Name)
	}

	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
