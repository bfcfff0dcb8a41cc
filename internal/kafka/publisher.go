package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/scrim-lobby/internal/config"
	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/eventbus"
)

// Envelope is the message written to the export topic
type Envelope struct {
	Type       string          `json:"type"`
	ScrimID    string          `json:"scrim_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher exports domain events to a Kafka topic, keyed by scrim so that
// one scrim's events stay ordered within a partition
type Publisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger

	wg     sync.WaitGroup
	sent   atomic.Int64
	failed atomic.Int64
}

// NewPublisher connects an async producer to the configured brokers
func NewPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = cfg.FlushFrequency
	saramaConfig.Producer.Flush.Messages = cfg.FlushMessages
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}

	logger.Info("kafka publisher connected",
		"brokers", cfg.Brokers,
		"topic", cfg.Topic,
	)
	return NewPublisherWithProducer(producer, cfg.Topic, logger), nil
}

// NewPublisherWithProducer wraps an existing producer. The producer must
// return both successes and errors.
func NewPublisherWithProducer(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		for range producer.Successes() {
			p.sent.Add(1)
		}
	}()
	go func() {
		defer p.wg.Done()
		for err := range producer.Errors() {
			p.failed.Add(1)
			p.logger.Error("failed to export event", "error", err.Err, "topic", err.Msg.Topic)
		}
	}()

	return p
}

// Register forwards every published event to Kafka
func (p *Publisher) Register(bus *eventbus.Bus) {
	bus.SubscribeAll("export.kafka", p.Forward)
}

// Forward enqueues one event on the producer
func (p *Publisher) Forward(ctx context.Context, evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	header := evt.Header()
	data, err := json.Marshal(Envelope{
		Type:       evt.Type(),
		ScrimID:    header.ScrimID,
		OccurredAt: header.OccurredAt,
		Payload:    payload,
	})
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(header.ScrimID),
		Value: sarama.ByteEncoder(data),
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sent returns the number of acknowledged messages
func (p *Publisher) Sent() int64 {
	return p.sent.Load()
}

// Failed returns the number of messages the brokers rejected
func (p *Publisher) Failed() int64 {
	return p.failed.Load()
}

// Close flushes pending messages and stops the producer
func (p *Publisher) Close() error {
	p.producer.AsyncClose()
	p.wg.Wait()
	p.logger.Info("kafka publisher closed", "sent", p.Sent(), "failed", p.Failed())
	return nil
}
