package codec

import (
	"bytes"
	"testing"

	"github.com/edgeflare/cellbridge/pkg/pipeline/cdc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleEvent() *cdc.Event {
	ev := cdc.NewEventBuilder().
		WithKey([]byte("key1")).
		WithTable([]byte("default:MyTable")).
		WithCell(cdc.Cell{
			Family:    []byte("FAMILY"),
			Qualifier: []byte("foo"),
			Value:     []byte("VALUE should pass"),
			Timestamp: 1718000000123,
		}).
		WithDelete(true).
		Build()
	return &ev
}

func TestRegistry(t *testing.T) {
	c, err := Get("")
	require.NoError(t, err)
	assert.Equal(t, Default, c.Name())

	_, err = Get("avro")
	assert.ErrorIs(t, err, ErrUnknownCodec)

	assert.Equal(t, []string{Msgpack, Proto}, Names())
}

func TestRoundTrip(t *testing.T) {
	events := map[string]*cdc.Event{
		"full":  sampleEvent(),
		"empty": {},
		"put without value": {
			Key:       []byte{0x00, 0xff},
			Table:     []byte("ns:t"),
			Family:    []byte("f"),
			Qualifier: []byte("q"),
			Timestamp: -1,
		},
	}

	for _, name := range Names() {
		c, err := Get(name)
		require.NoError(t, err)

		for label, ev := range events {
			t.Run(name+"/"+label, func(t *testing.T) {
				var buf bytes.Buffer
				require.NoError(t, c.Encode(&buf, ev))

				got, err := c.Decode(buf.Bytes())
				require.NoError(t, err)
				assert.Equal(t, ev, got)
			})
		}
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	for _, name := range Names() {
		c, _ := Get(name)
		var a, b bytes.Buffer
		require.NoError(t, c.Encode(&a, sampleEvent()))
		require.NoError(t, c.Encode(&b, sampleEvent()))
		assert.Equal(t, a.Bytes(), b.Bytes(), name)
	}
}

func TestEncodeAppends(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("prefix")
	require.NoError(t, ProtoCodec{}.Encode(&buf, sampleEvent()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("prefix")))
}

func TestDecodeDoesNotAlias(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ProtoCodec{}.Encode(&buf, sampleEvent()))
	data := buf.Bytes()

	ev, err := ProtoCodec{}.Decode(data)
	require.NoError(t, err)
	for i := range data {
		data[i] = 0
	}
	assert.Equal(t, []byte("key1"), ev.Key)
}

func TestProtoSkipsUnknownFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ProtoCodec{}.Encode(&buf, sampleEvent()))
	b := protowire.AppendTag(buf.Bytes(), 42, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))

	ev, err := ProtoCodec{}.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, sampleEvent(), ev)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := ProtoCodec{}.Decode([]byte{0x0a, 0x05, 'a'})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = MsgpackCodec{}.Decode([]byte{0x93, 0xc0, 0xc0, 0xc0})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = MsgpackCodec{}.Decode(nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncodeNilEvent(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, ProtoCodec{}.Encode(&buf, nil))
	assert.Error(t, MsgpackCodec{}.Encode(&buf, nil))
}
