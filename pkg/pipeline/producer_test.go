package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFutureResolvesOnce(t *testing.T) {
	f := NewFuture()
	first := errors.New("first")
	f.Resolve(first)
	f.Resolve(nil)

	assert.ErrorIs(t, f.Wait(context.Background()), first)
	select {
	case <-f.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestFutureWaitHonorsContext(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
}

func TestResolved(t *testing.T) {
	assert.NoError(t, Resolved(nil).Wait(context.Background()))
}

type nopProducer struct{}

func (nopProducer) Send(Message) Pending        { return Resolved(nil) }
func (nopProducer) Flush(context.Context) error { return nil }
func (nopProducer) Close() error                { return nil }

func TestOpen(t *testing.T) {
	attempts := 0
	RegisterProducer("flaky", func(_ context.Context, config json.RawMessage, _ *zap.Logger) (Producer, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("connection refused")
		}
		assert.JSONEq(t, `{"brokers":["localhost:9092"]}`, string(config))
		return nopProducer{}, nil
	})
	assert.Contains(t, Producers(), "flaky")

	p, err := Open(context.Background(), Peer{
		Name:           "test",
		ConnectorName:  "flaky",
		Config:         map[string]any{"brokers": []string{"localhost:9092"}},
		ConnectTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, 2, attempts)

	_, err = Open(context.Background(), Peer{Name: "x", ConnectorName: "unknown"}, nil)
	assert.ErrorIs(t, err, ErrProducerNotFound)
}

func TestInflightWait(t *testing.T) {
	var c Inflight
	require.NoError(t, c.Wait(context.Background()))

	c.Add(2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- c.Wait(context.Background()) }()
	c.Done(1)
	assert.Equal(t, 1, c.Len())
	c.Done(1)
	require.NoError(t, <-done)
	assert.Equal(t, 0, c.Len())
}
