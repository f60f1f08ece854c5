// Package kafkago publishes dispatched messages to Kafka with
// segmentio/kafka-go. It is a pure Go alternative to the sarama producer for
// deployments that do not need SASL/SCRAM.
package kafkago

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize    = 100
	DefaultBatchBytes   = 1 << 20 // 1MB
	DefaultBatchTimeout = 10 * time.Millisecond
)

// Config holds configuration for Producer
type Config struct {
	Brokers          []string `json:"brokers"`
	BatchSize        int      `json:"batchSize,omitempty"`
	BatchBytes       int64    `json:"batchBytes,omitempty"`
	BatchTimeoutMS   int      `json:"batchTimeoutMs,omitempty"`
	AutoCreateTopics bool     `json:"autoCreateTopics,omitempty"`
	// RequiredAcks is -1 (all replicas), 1 (leader) or 0 (none). Defaults to -1.
	RequiredAcks *int `json:"requiredAcks,omitempty"`
}

// Producer writes through an asynchronous kafka.Writer. The future of each
// message travels in Message.WriterData and is resolved by the Completion
// callback.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger

	mu       sync.RWMutex
	closed   bool
	inflight pipeline.Inflight
}

var _ pipeline.Producer = (*Producer)(nil)

func New(cfg Config, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkago producer requires at least one broker address")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchBytes == 0 {
		cfg.BatchBytes = DefaultBatchBytes
	}
	batchTimeout := DefaultBatchTimeout
	if cfg.BatchTimeoutMS > 0 {
		batchTimeout = time.Duration(cfg.BatchTimeoutMS) * time.Millisecond
	}
	acks := kafka.RequireAll
	if cfg.RequiredAcks != nil {
		acks = kafka.RequiredAcks(*cfg.RequiredAcks)
	}

	p := &Producer{logger: logger}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{}, // same row key, same partition
		BatchSize:              cfg.BatchSize,
		BatchBytes:             cfg.BatchBytes,
		BatchTimeout:           batchTimeout,
		RequiredAcks:           acks,
		Async:                  true,
		AllowAutoTopicCreation: cfg.AutoCreateTopics,
		Completion:             p.complete,
	}
	return p, nil
}

func (p *Producer) Send(msg pipeline.Message) pipeline.Pending {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return pipeline.Resolved(pipeline.ErrProducerClosed)
	}

	f := pipeline.NewFuture()
	p.inflight.Add(1)
	err := p.writer.WriteMessages(context.Background(), kafka.Message{
		Topic:      msg.Topic,
		Key:        msg.Key,
		Value:      msg.Value,
		WriterData: f,
	})
	if err != nil {
		// rejected before reaching the batch, Completion will not fire
		p.inflight.Done(1)
		f.Resolve(err)
	}
	return f
}

// complete is the writer's Completion callback.
func (p *Producer) complete(messages []kafka.Message, err error) {
	if err != nil {
		p.logger.Warn("Kafka batch write failed", zap.Int("messages", len(messages)), zap.Error(err))
	}
	resolved := 0
	for _, m := range messages {
		if f, ok := m.WriterData.(*pipeline.Future); ok {
			f.Resolve(err)
			resolved++
		}
	}
	p.inflight.Done(resolved)
}

// Flush waits until every written message went through the Completion callback.
func (p *Producer) Flush(ctx context.Context) error {
	return p.inflight.Wait(ctx)
}

func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.writer.Close()
}

func init() {
	pipeline.RegisterProducer(pipeline.ProducerKafkaGo, func(_ context.Context, config json.RawMessage, logger *zap.Logger) (pipeline.Producer, error) {
		var cfg Config
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal kafkago config: %w", err)
		}
		return New(cfg, logger)
	})
}
