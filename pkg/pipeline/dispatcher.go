package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/edgeflare/cellbridge/pkg/metrics"
	"github.com/edgeflare/cellbridge/pkg/pipeline/cdc"
	"github.com/edgeflare/cellbridge/pkg/pipeline/codec"
	"github.com/edgeflare/cellbridge/pkg/rules"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Dispatcher fans batches of row mutations out to broker topics according to
// the active rule set.
type Dispatcher struct {
	rules    *rules.Store
	producer Producer
	codec    codec.Codec
	logger   *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCodec sets the event encoding. Defaults to codec.Default.
func WithCodec(c codec.Codec) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.codec = c
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func NewDispatcher(store *rules.Store, producer Producer, opts ...Option) *Dispatcher {
	def, _ := codec.Get(codec.Default)
	d := &Dispatcher{
		rules:    store,
		producer: producer,
		codec:    def,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result summarizes a submitted batch.
type Result struct {
	Cells    int `json:"cells"`
	Excluded int `json:"excluded"`
	Unrouted int `json:"unrouted"`
	Messages int `json:"messages"`
}

type inflight struct {
	topic   string
	key     []byte
	pending Pending
}

// Submit publishes one message per (cell, topic) pair of the batch and returns
// once every message was acknowledged and the producer flushed. Any failure
// fails the whole batch with a *BatchError. Nothing is retried.
//
// The batch is evaluated against a single rule snapshot even if the rules are
// reloaded concurrently. Submit is safe for concurrent use.
func (d *Dispatcher) Submit(ctx context.Context, table rules.TableName, batch []cdc.Mutation) (Result, error) {
	start := time.Now()
	tableName := table.String()
	log := d.logger.With(zap.String("batch", uuid.NewString()), zap.String("table", tableName))

	rs := d.rules.Load()
	tableBytes := []byte(tableName)

	var (
		res     Result
		sent    []inflight
		buf     bytes.Buffer
		errs    error
		aborted bool
	)

dispatch:
	for _, m := range batch {
		for _, cell := range m.Cells {
			res.Cells++
			if rs.IsExcluded(table, cell.Family, cell.Qualifier) {
				res.Excluded++
				continue
			}
			topics := rs.TopicsFor(table, cell.Family, cell.Qualifier)
			if len(topics) == 0 {
				res.Unrouted++
				continue
			}

			for _, topic := range topics {
				ev := cdc.NewEventBuilder().
					WithKey(m.Row).
					WithTable(tableBytes).
					WithCell(cell).
					WithDelete(m.Delete).
					Build()

				buf.Reset()
				if err := d.codec.Encode(&buf, &ev); err != nil {
					metrics.SerializationErrors.WithLabelValues(d.codec.Name()).Inc()
					errs = multierr.Append(errs, fmt.Errorf("%w: row %q topic %s: %w", ErrSerialization, m.Row, topic, err))
					aborted = true
					break dispatch
				}

				msg := Message{Topic: topic, Key: m.Row, Value: bytes.Clone(buf.Bytes())}
				sent = append(sent, inflight{topic: topic, key: m.Row, pending: d.producer.Send(msg)})
				metrics.DispatchedMessages.WithLabelValues(topic).Inc()
			}
		}
	}
	res.Messages = len(sent)

	failed := 0
	for _, f := range sent {
		if err := f.pending.Wait(ctx); err != nil {
			failed++
			metrics.SendErrors.WithLabelValues(f.topic).Inc()
			errs = multierr.Append(errs, &SendError{Topic: f.topic, Key: f.key, Err: err})
		}
	}

	if err := d.producer.Flush(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("%w: %w", ErrFlush, err))
	}

	metrics.Cells.WithLabelValues(tableName, "excluded").Add(float64(res.Excluded))
	metrics.Cells.WithLabelValues(tableName, "unrouted").Add(float64(res.Unrouted))
	metrics.Cells.WithLabelValues(tableName, "routed").Add(float64(res.Cells - res.Excluded - res.Unrouted))
	metrics.BatchDuration.WithLabelValues(tableName).Observe(time.Since(start).Seconds())

	if errs != nil {
		metrics.Batches.WithLabelValues(tableName, "error").Inc()
		log.Error("Batch failed",
			zap.Int("messages", res.Messages),
			zap.Int("failed", failed),
			zap.Bool("aborted", aborted),
			zap.Error(errs))
		return res, &BatchError{Table: tableName, Dispatched: res.Messages, Failed: failed, Err: errs}
	}

	metrics.Batches.WithLabelValues(tableName, "ok").Inc()
	log.Debug("Batch dispatched",
		zap.Int("cells", res.Cells),
		zap.Int("excluded", res.Excluded),
		zap.Int("unrouted", res.Unrouted),
		zap.Int("messages", res.Messages),
		zap.Duration("took", time.Since(start)))
	return res, nil
}
