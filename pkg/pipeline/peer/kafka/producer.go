package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Producer publishes through a sarama AsyncProducer. Each message carries its
// future in Metadata and is resolved when sarama reports it on the
// Successes or Errors channel.
type Producer struct {
	async  sarama.AsyncProducer
	logger *zap.Logger

	mu       sync.RWMutex // guards closed against Send
	closed   bool
	inflight pipeline.Inflight
	done     chan struct{}

	draining atomic.Bool
	closeMu  sync.Mutex
	closeErr error // failures reported while draining
}

var _ pipeline.Producer = (*Producer)(nil)

// New connects to the brokers, creates missing bootstrap topics and starts
// the acknowledgement loop.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	cfg.setDefaults()
	conf, err := cfg.ToSaramaConfig()
	if err != nil {
		return nil, err
	}

	if len(cfg.Topics) > 0 {
		if err := EnsureTopics(ctx, &cfg, conf, logger); err != nil {
			return nil, err
		}
	}

	async, err := sarama.NewAsyncProducer(cfg.Brokers, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return newProducer(async, logger), nil
}

func newProducer(async sarama.AsyncProducer, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{
		async:  async,
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.acknowledge()
	return p
}

func (p *Producer) Send(msg pipeline.Message) pipeline.Pending {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return pipeline.Resolved(pipeline.ErrProducerClosed)
	}

	f := pipeline.NewFuture()
	p.inflight.Add(1)
	p.async.Input() <- &sarama.ProducerMessage{
		Topic:    msg.Topic,
		Key:      sarama.ByteEncoder(msg.Key),
		Value:    sarama.ByteEncoder(msg.Value),
		Metadata: f,
	}
	return f
}

func (p *Producer) acknowledge() {
	defer close(p.done)
	successes, errs := p.async.Successes(), p.async.Errors()
	for successes != nil || errs != nil {
		select {
		case msg, ok := <-successes:
			if !ok {
				successes = nil
				continue
			}
			p.resolve(msg, nil)
		case perr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Warn("Kafka produce failed", zap.String("topic", perr.Msg.Topic), zap.Error(perr.Err))
			p.resolve(perr.Msg, perr.Err)
			if p.draining.Load() {
				p.closeMu.Lock()
				p.closeErr = multierr.Append(p.closeErr, perr)
				p.closeMu.Unlock()
			}
		}
	}
}

func (p *Producer) resolve(msg *sarama.ProducerMessage, err error) {
	if f, ok := msg.Metadata.(*pipeline.Future); ok {
		f.Resolve(err)
		p.inflight.Done(1)
	}
}

// Flush waits until every message handed to Send has been acknowledged or
// rejected by the brokers.
func (p *Producer) Flush(ctx context.Context) error {
	return p.inflight.Wait(ctx)
}

// Close stops accepting messages and shuts the client down. The
// acknowledgement loop keeps draining until sarama closes both result
// channels, so every outstanding handle resolves with its outcome. The
// returned error joins the failures reported while draining.
func (p *Producer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	// AsyncClose leaves Successes and Errors to us; Close would consume them.
	p.draining.Store(true)
	p.async.AsyncClose()
	<-p.done

	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	return p.closeErr
}

func init() {
	pipeline.RegisterProducer(pipeline.ProducerKafka, func(ctx context.Context, config json.RawMessage, logger *zap.Logger) (pipeline.Producer, error) {
		var cfg Config
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Kafka config: %w", err)
		}
		return New(ctx, cfg, logger)
	})
}
