package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/odaiidemos/k9-sub001/internal/infra/config"
)

const (
	flushInterval   = 100 * time.Millisecond
	flushBatchSize  = 100
	publishRetries  = 3
	metadataBackoff = 250 * time.Millisecond
)

// Producer wraps a Sarama async producer with a background error drain and
// prefix-aware topic naming.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
}

// asyncConfig tunes the producer for fire-and-forget security events: ack
// from the partition leader is enough, batches flush on a short timer, and
// only failures come back on the errors channel.
func asyncConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_5_0_0

	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = flushInterval
	cfg.Producer.Flush.Messages = flushBatchSize
	cfg.Producer.Retry.Max = publishRetries
	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true

	cfg.Metadata.Retry.Max = publishRetries
	cfg.Metadata.Retry.Backoff = metadataBackoff

	return cfg
}

// NewProducer connects an async producer to the configured brokers.
// Publishes are fire-and-forget; delivery errors surface in the logs only.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, asyncConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := &Producer{producer: producer, logger: logger, cfg: cfg}
	go p.drainErrors()

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("async", cfg.Async),
	)

	return p, nil
}

// Send queues one message for the event type's topic, blocking until the
// producer accepts it or ctx ends. Delivery is not awaited.
func (p *Producer) Send(ctx context.Context, eventType string, body []byte) error {
	msg := &sarama.ProducerMessage{
		Topic: p.topicName(eventType),
		Value: sarama.ByteEncoder(body),
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drainErrors consumes the producer error channel so undelivered security
// events are at least visible in the logs. Auth decisions never wait on event
// delivery. Sarama closes the channel during Close, which ends the loop.
func (p *Producer) drainErrors() {
	for failure := range p.producer.Errors() {
		p.logger.Error("kafka delivery failed",
			zap.Error(failure.Err),
			zap.String("topic", failure.Msg.Topic),
			zap.Int32("partition", failure.Msg.Partition),
		)
	}
}

// Close flushes pending messages and stops the error drain.
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")

	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}

	return nil
}

// topicName prepends the configured topic prefix unless it is already present.
func (p *Producer) topicName(eventType string) string {
	prefix := p.cfg.TopicPrefix
	if prefix == "" || strings.HasPrefix(eventType, prefix+".") {
		return eventType
	}

	return prefix + "." + eventType
}
