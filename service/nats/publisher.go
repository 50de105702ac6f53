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

// Publisher defines the interface for announcing confirmed transfers.
type Publisher interface {
	// PublishTransferConfirmed publishes a confirmation event to
	// JetStream on the subject "transfers.confirmed.{transfer_id}".
	PublishTransferConfirmed(ctx context.Context, event TransferConfirmedEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes transfer confirmation events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// ConfirmationStreamName is the name of the JetStream stream for
	// transfer confirmations.
	ConfirmationStreamName = "TRANSFER_CONFIRMATIONS"

	// ConfirmationStreamSubjects is the subject pattern for the stream.
	ConfirmationStreamSubjects = "transfers.confirmed.*"

	// ConfirmationStreamRetention is how long confirmation events are
	// retained (30 days by default).
	ConfirmationStreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the confirmation stream exists.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("gasless-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", ConfirmationStreamName,
	)

	return publisher, nil
}

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, ConfirmationStreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", ConfirmationStreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", ConfirmationStreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        ConfirmationStreamName,
		Description: "Confirmation events for relayed transfers",
		Subjects:    []string{ConfirmationStreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      ConfirmationStreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	_, err = p.js.CreateStream(ctx, streamConfig)
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", ConfirmationStreamName)
	return nil
}

// PublishTransferConfirmed publishes a single confirmation event.
func (p *JetStreamPublisher) PublishTransferConfirmed(ctx context.Context, event TransferConfirmedEvent) error {
	subject := fmt.Sprintf("transfers.confirmed.%s", event.TransferID)
	event.PublishedAt = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal confirmation event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	p.record(subject, start, err)
	if err != nil {
		return fmt.Errorf("failed to publish confirmation: %w", err)
	}

	p.logger.Debug("published transfer confirmation",
		"subject", subject,
		"transfer_id", event.TransferID,
		"signature", event.Signature,
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

func (p *JetStreamPublisher) record(subject string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
}
