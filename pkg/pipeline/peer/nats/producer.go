package nats

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// KeyHeader carries the base64 encoded row key of a published message.
const KeyHeader = "Cellbridge-Key"

var errConnNotInitialized = errors.New("NATS connection not initialized")

// Config represents NATS configuration
type Config struct {
	Servers []string `json:"servers"`
	// Stream captures every published subject. Created or updated at connect time.
	Stream string `json:"stream"`
	// SubjectPrefix is prepended to each topic, separated by a dot.
	SubjectPrefix string `json:"subjectPrefix"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	// MaxPending bounds the number of unacknowledged async publishes.
	MaxPending int `json:"maxPending,omitempty"`
	TLS        struct {
		Enabled  bool   `json:"enabled"`
		CertFile string `json:"certFile,omitempty"`
		KeyFile  string `json:"keyFile,omitempty"`
		CAFile   string `json:"caFile,omitempty"`
	} `json:"tls,omitempty"`
}

func (c *Config) setDefaults() {
	if len(c.Servers) == 0 {
		c.Servers = []string{nats.DefaultURL}
	}
	c.SubjectPrefix = cmp.Or(c.SubjectPrefix, "cellbridge")
	c.Stream = cmp.Or(c.Stream, fmt.Sprintf("%s-stream", c.SubjectPrefix))
	c.MaxPending = cmp.Or(c.MaxPending, 4096)
}

// Producer publishes to JetStream asynchronously. Each handle is the
// PubAckFuture returned by the client.
type Producer struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

var _ pipeline.Producer = (*Producer)(nil)

// New connects to the first reachable server and ensures the stream exists.
func New(cfg Config, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.setDefaults()

	p := &Producer{config: cfg, logger: logger}
	opts := defaultOptions(cfg)

	var err error
	for _, server := range cfg.Servers {
		p.nc, err = nats.Connect(server, opts...)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS server: %w", err)
	}

	if p.js, err = p.nc.JetStream(nats.PublishAsyncMaxPending(cfg.MaxPending)); err != nil {
		p.nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := p.ensureStream(); err != nil {
		p.nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

// Subject maps a topic to the published subject.
func (p *Producer) Subject(topic string) string {
	return subject(p.config.SubjectPrefix, topic)
}

func subject(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + "." + topic
}

func (p *Producer) Send(msg pipeline.Message) pipeline.Pending {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return pipeline.Resolved(pipeline.ErrProducerClosed)
	}
	if p.js == nil {
		return pipeline.Resolved(errConnNotInitialized)
	}

	m := nats.NewMsg(p.Subject(msg.Topic))
	m.Data = msg.Value
	m.Header.Set(KeyHeader, base64.StdEncoding.EncodeToString(msg.Key))

	ack, err := p.js.PublishMsgAsync(m)
	if err != nil {
		return pipeline.Resolved(fmt.Errorf("publish message: %w", err))
	}
	return ackFuture{ack}
}

// ackFuture adapts nats.PubAckFuture to pipeline.Pending.
type ackFuture struct {
	f nats.PubAckFuture
}

func (a ackFuture) Wait(ctx context.Context) error {
	select {
	case <-a.f.Ok():
		return nil
	case err := <-a.f.Err():
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits for every outstanding async publish to be acknowledged.
func (p *Producer) Flush(ctx context.Context) error {
	if p.js == nil {
		return errConnNotInitialized
	}
	select {
	case <-p.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the connection so pending acknowledgements are delivered.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.nc == nil {
		return nil
	}
	p.closed = true
	return p.nc.Drain()
}

// ensureStream creates or updates the stream
func (p *Producer) ensureStream() error {
	config := streamConfig(p.config)

	stream, err := p.js.StreamInfo(p.config.Stream)
	if err == nil {
		if !streamConfigEqual(stream.Config, *config) {
			if _, err = p.js.UpdateStream(config); err != nil {
				return fmt.Errorf("update stream: %w", err)
			}
			p.logger.Info("Updated stream", zap.String("stream", p.config.Stream))
		}
		return nil
	}

	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}

	if _, err := p.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	p.logger.Info("Created stream", zap.String("stream", p.config.Stream))
	return nil
}

func streamConfig(c Config) *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:     c.Stream,
		Subjects: []string{subject(strings.TrimSuffix(c.SubjectPrefix, "."), ">")},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}
}

// streamConfigEqual checks if two nats.StreamConfig are equivalent
func streamConfigEqual(a, b nats.StreamConfig) bool {
	if a.Name != b.Name || a.Storage != b.Storage || a.Replicas != b.Replicas {
		return false
	}

	if len(a.Subjects) != len(b.Subjects) {
		return false
	}

	for i := range a.Subjects {
		if a.Subjects[i] != b.Subjects[i] {
			return false
		}
	}
	return true
}

func defaultOptions(c Config) []nats.Option {
	opts := []nats.Option{
		nats.Name("cellbridge"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}

	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}

	if c.TLS.Enabled {
		if c.TLS.CAFile != "" {
			opts = append(opts, nats.RootCAs(c.TLS.CAFile))
		}
		if c.TLS.CertFile != "" && c.TLS.KeyFile != "" {
			opts = append(opts, nats.ClientCert(c.TLS.CertFile, c.TLS.KeyFile))
		}
	}

	return opts
}

func init() {
	pipeline.RegisterProducer(pipeline.ProducerNATS, func(_ context.Context, config json.RawMessage, logger *zap.Logger) (pipeline.Producer, error) {
		var cfg Config
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal NATS config: %w", err)
		}
		return New(cfg, logger)
	})
}
