// Package debug provides a producer that logs every message instead of
// publishing it. Handy for trying out rule sets.
package debug

import (
	"context"
	"encoding/json"

	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/edgeflare/cellbridge/pkg/pipeline/codec"
	"go.uber.org/zap"
)

// Config of the debug producer
type Config struct {
	// Codec decodes logged payloads. Leave empty to log raw bytes.
	Codec string `json:"codec,omitempty"`
}

// Producer logs each message and acknowledges it immediately.
type Producer struct {
	logger *zap.Logger
	codec  codec.Codec
}

var _ pipeline.Producer = (*Producer)(nil)

func New(cfg Config, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{logger: logger.Named(pipeline.ProducerDebug)}
	if cfg.Codec != "" {
		c, err := codec.Get(cfg.Codec)
		if err != nil {
			return nil, err
		}
		p.codec = c
	}
	return p, nil
}

func (p *Producer) Send(msg pipeline.Message) pipeline.Pending {
	fields := []zap.Field{
		zap.String("topic", msg.Topic),
		zap.ByteString("key", msg.Key),
	}
	if p.codec != nil {
		if ev, err := p.codec.Decode(msg.Value); err == nil {
			fields = append(fields, zap.Any("event", ev))
		} else {
			fields = append(fields, zap.Binary("value", msg.Value), zap.NamedError("decodeError", err))
		}
	} else {
		fields = append(fields, zap.Binary("value", msg.Value))
	}
	p.logger.Info("Message", fields...)
	return pipeline.Resolved(nil)
}

func (p *Producer) Flush(_ context.Context) error {
	return nil
}

func (p *Producer) Close() error {
	_ = p.logger.Sync()
	return nil
}

func init() {
	pipeline.RegisterProducer(pipeline.ProducerDebug, func(_ context.Context, config json.RawMessage, logger *zap.Logger) (pipeline.Producer, error) {
		var cfg Config
		if len(config) > 0 && string(config) != "null" {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, err
			}
		}
		return New(cfg, logger)
	})
}
