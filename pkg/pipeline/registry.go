package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Built-in producers
const (
	ProducerDebug   = "debug"
	ProducerKafka   = "kafka"
	ProducerKafkaGo = "kafkago"
	ProducerMQTT    = "mqtt"
	ProducerNATS    = "nats"
)

// Factory connects a producer from its raw JSON configuration.
type Factory func(ctx context.Context, config json.RawMessage, logger *zap.Logger) (Producer, error)

var (
	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// RegisterProducer adds a producer factory to the registry.
// The name parameter is used as a key to identify the producer type.
func RegisterProducer(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = f
}

// Producers returns the names of the registered producers.
func Producers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Peer is a broker destination with its producer type (ie kafka, nats, mqtt).
type Peer struct {
	Name          string `mapstructure:"name"`
	ConnectorName string `mapstructure:"connector"`
	// Config contains the connection config of the underlying client
	// eg brokers, SASL and TLS settings for kafka
	Config map[string]any `mapstructure:"config"`
	// ConnectTimeout bounds the retries of the initial connection, defaults to 10s
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

// Open connects the producer described by peer, retrying with exponential
// backoff until it succeeds, the connect timeout elapses or ctx is done.
func Open(ctx context.Context, peer Peer, logger *zap.Logger) (Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	mu.RLock()
	factory, ok := factories[peer.ConnectorName]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProducerNotFound, peer.ConnectorName)
	}

	configJSON, err := json.Marshal(peer.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config for peer %s: %w", peer.Name, err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxElapsedTime = peer.ConnectTimeout
	if bo.MaxElapsedTime == 0 {
		bo.MaxElapsedTime = 10 * time.Second
	}

	log := logger.With(zap.String("peer", peer.Name), zap.String("connector", peer.ConnectorName))

	var producer Producer
	connect := func() error {
		p, err := factory(ctx, json.RawMessage(configJSON), log)
		if err != nil {
			return err
		}
		producer = p
		return nil
	}
	notify := func(err error, delay time.Duration) {
		log.Warn("Retrying connection", zap.Duration("delay", delay), zap.Error(err))
	}

	if err := backoff.RetryNotify(connect, backoff.WithContext(bo, ctx), notify); err != nil {
		log.Error("Failed to connect producer", zap.Error(err))
		return nil, fmt.Errorf("failed to connect producer %s: %w", peer.Name, err)
	}

	log.Info("Successfully connected peer")
	return producer, nil
}
