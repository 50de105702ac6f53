package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/brojonat/gasless/service/metrics"
)

// Handler processes one enriched transaction notification. A nil return
// acknowledges the message; an error triggers redelivery. Handlers must
// be idempotent because JetStream delivery is at-least-once.
type Handler interface {
	HandleTransaction(ctx context.Context, txn EnrichedTransaction) error
}

const (
	// IndexerStreamName is the JetStream stream carrying enriched
	// transaction notifications from the chain indexer.
	IndexerStreamName = "INDEXER_TXNS"

	// IndexerConsumerName is the durable consumer name; all relay
	// instances share one consumer so notifications are load balanced.
	IndexerConsumerName = "gasless-reconciler"
)

// Consumer subscribes to the indexer notification stream and feeds each
// enriched transaction to the handler.
type Consumer struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	subject  string
	handler  Handler
	metrics  *metrics.Metrics
	logger   *slog.Logger
	consumer jetstream.ConsumeContext
}

// NewConsumer connects to NATS and binds a durable consumer to the
// indexer stream. It ensures the stream exists so the consumer can start
// before the indexer has published anything.
func NewConsumer(natsURL, subject string, handler Handler, m *metrics.Metrics, logger *slog.Logger) (*Consumer, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("gasless-consumer"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c := &Consumer{
		nc:      nc,
		js:      js,
		subject: subject,
		handler: handler,
		metrics: m,
		logger:  logger,
	}

	if err := c.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS consumer initialized",
		"url", natsURL,
		"stream", IndexerStreamName,
		"subject", subject,
	)

	return c, nil
}

func (c *Consumer) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := c.js.Stream(ctx, IndexerStreamName)
	if err == nil {
		return nil
	}

	c.logger.Info("creating JetStream stream", "stream", IndexerStreamName)

	_, err = c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        IndexerStreamName,
		Description: "Enriched transaction notifications from the chain indexer",
		Subjects:    []string{c.subject},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Start creates the durable consumer and begins delivering messages to
// the handler. It returns once consumption is running.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, IndexerStreamName, jetstream.ConsumerConfig{
		Durable:       IndexerConsumerName,
		FilterSubject: c.subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    -1,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		c.handleMessage(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.consumer = consumeCtx

	c.logger.Info("consuming indexer notifications",
		"consumer", IndexerConsumerName,
		"subject", c.subject,
	)
	return nil
}

func (c *Consumer) handleMessage(msg jetstream.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var txn EnrichedTransaction
	if err := json.Unmarshal(msg.Data(), &txn); err != nil {
		// Malformed payloads can never succeed; drop them.
		c.logger.Error("failed to decode indexer notification, discarding",
			"subject", msg.Subject(),
			"error", err,
		)
		c.record("decode_error")
		_ = msg.Ack()
		return
	}

	if err := c.handler.HandleTransaction(ctx, txn); err != nil {
		c.logger.Error("failed to process indexer notification, will redeliver",
			"signature", txn.Signature,
			"error", err,
		)
		c.record("handler_error")
		_ = msg.Nak()
		return
	}

	c.record("processed")
	_ = msg.Ack()
}

// Stop drains the consumer and closes the connection.
func (c *Consumer) Stop() {
	if c.consumer != nil {
		c.consumer.Stop()
	}
	if c.nc != nil {
		c.nc.Close()
	}
	c.logger.Info("NATS consumer stopped")
}

func (c *Consumer) record(outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordNATSConsume(c.subject, outcome)
}
