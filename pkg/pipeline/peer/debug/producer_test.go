package debug

import (
	"bytes"
	"context"
	"testing"

	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/edgeflare/cellbridge/pkg/pipeline/cdc"
	"github.com/edgeflare/cellbridge/pkg/pipeline/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestProducerLogsDecodedEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p, err := New(Config{Codec: codec.Proto}, zap.New(core))
	require.NoError(t, err)

	var buf bytes.Buffer
	ev := cdc.Event{Key: []byte("r1"), Table: []byte("default:T"), Family: []byte("F"), Qualifier: []byte("q")}
	require.NoError(t, codec.ProtoCodec{}.Encode(&buf, &ev))

	require.NoError(t, p.Send(pipeline.Message{Topic: "audit", Key: []byte("r1"), Value: buf.Bytes()}).Wait(context.Background()))
	require.NoError(t, p.Flush(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "audit", fields["topic"])
	assert.Equal(t, &ev, fields["event"])
}

func TestNewUnknownCodec(t *testing.T) {
	_, err := New(Config{Codec: "avro"}, nil)
	assert.ErrorIs(t, err, codec.ErrUnknownCodec)
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, pipeline.Producers(), pipeline.ProducerDebug)
}
