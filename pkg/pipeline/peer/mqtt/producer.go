package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"go.uber.org/zap"
)

// Producer publishes through a paho client. The pending handle is the
// publish Token, which completes on PUBACK (QoS 1) or PUBCOMP (QoS 2).
type Producer struct {
	client mqtt.Client
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

var _ pipeline.Producer = (*Producer)(nil)

// New connects to the broker.
func New(cfg Config, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.setDefaults()

	opts, err := toPahoOptions(&cfg)
	if err != nil {
		return nil, err
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("broker connection error: %w", token.Error())
	}
	logger.Info("Connected to MQTT broker", zap.Strings("servers", cfg.Servers))

	return newProducer(client, cfg, logger), nil
}

func newProducer(client mqtt.Client, cfg Config, logger *zap.Logger) *Producer {
	return &Producer{client: client, config: cfg, logger: logger}
}

// Topic maps a dispatch topic to the MQTT topic.
func (p *Producer) Topic(topic string) string {
	prefix := strings.Trim(p.config.TopicPrefix, "/")
	if prefix == "" {
		return topic
	}
	return prefix + "/" + topic
}

// Send publishes msg. MQTT 3.1.1 has no message headers, so the row key is
// only part of the encoded payload.
func (p *Producer) Send(msg pipeline.Message) pipeline.Pending {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return pipeline.Resolved(pipeline.ErrProducerClosed)
	}
	return tokenPending{p.client.Publish(p.Topic(msg.Topic), p.config.QoS, p.config.Retained, msg.Value)}
}

// tokenPending adapts mqtt.Token to pipeline.Pending.
type tokenPending struct {
	token mqtt.Token
}

func (t tokenPending) Wait(ctx context.Context) error {
	select {
	case <-t.token.Done():
		return t.token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush is a no-op, paho does not buffer acknowledged publishes and every
// token is awaited by the dispatcher.
func (p *Producer) Flush(_ context.Context) error {
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.client.Disconnect(250)
	p.logger.Info("Disconnected from MQTT broker")
	return nil
}

func init() {
	pipeline.RegisterProducer(pipeline.ProducerMQTT, func(_ context.Context, config json.RawMessage, logger *zap.Logger) (pipeline.Producer, error) {
		var cfg Config
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal MQTT config: %w", err)
		}
		return New(cfg, logger)
	})
}
