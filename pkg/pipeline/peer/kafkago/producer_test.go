package kafkago

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	p, err := New(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.True(t, p.writer.Async)
	assert.Equal(t, kafka.RequireAll, p.writer.RequiredAcks)
	assert.Equal(t, DefaultBatchSize, p.writer.BatchSize)
	assert.Equal(t, int64(DefaultBatchBytes), p.writer.BatchBytes)
	assert.Equal(t, DefaultBatchTimeout, p.writer.BatchTimeout)
	assert.IsType(t, &kafka.Hash{}, p.writer.Balancer)
	assert.NotNil(t, p.writer.Completion)
}

func TestNewOverrides(t *testing.T) {
	leader := 1
	p, err := New(Config{
		Brokers:        []string{"localhost:9092"},
		BatchSize:      10,
		BatchTimeoutMS: 50,
		RequiredAcks:   &leader,
	}, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, kafka.RequireOne, p.writer.RequiredAcks)
	assert.Equal(t, 10, p.writer.BatchSize)
	assert.Equal(t, 50*time.Millisecond, p.writer.BatchTimeout)
}

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestCompletionResolvesFutures(t *testing.T) {
	p, err := New(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	defer p.Close()

	ok, failed := pipeline.NewFuture(), pipeline.NewFuture()
	p.inflight.Add(2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Flush(ctx), context.DeadlineExceeded)

	p.complete([]kafka.Message{{WriterData: ok}}, nil)
	leaderGone := errors.New("leader not available")
	p.complete([]kafka.Message{{WriterData: failed}}, leaderGone)

	assert.NoError(t, ok.Wait(context.Background()))
	assert.ErrorIs(t, failed.Wait(context.Background()), leaderGone)
	assert.NoError(t, p.Flush(context.Background()))
}

func TestSendAfterClose(t *testing.T) {
	p, err := New(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	err = p.Send(pipeline.Message{Topic: "audit"}).Wait(context.Background())
	assert.ErrorIs(t, err, pipeline.ErrProducerClosed)
}
