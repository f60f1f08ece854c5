package codec

import (
	"bytes"
	"fmt"

	"github.com/edgeflare/cellbridge/pkg/pipeline/cdc"
	"github.com/vmihailenco/msgpack/v5"
)

const Msgpack = "msgpack"

const msgpackFields = 7

// MsgpackCodec writes events as a fixed seven element msgpack array:
// [key, table, family, qualifier, value, timestamp, delete].
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return Msgpack }

func (MsgpackCodec) Encode(buf *bytes.Buffer, ev *cdc.Event) error {
	if ev == nil {
		return fmt.Errorf("%s: nil event", Msgpack)
	}

	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(buf)

	if err := enc.EncodeArrayLen(msgpackFields); err != nil {
		return err
	}
	for _, b := range [][]byte{ev.Key, ev.Table, ev.Family, ev.Qualifier, ev.Value} {
		if err := enc.EncodeBytes(b); err != nil {
			return err
		}
	}
	if err := enc.EncodeInt(ev.Timestamp); err != nil {
		return err
	}
	return enc.EncodeBool(ev.Delete)
}

func (MsgpackCodec) Decode(data []byte) (*cdc.Event, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(data))

	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n != msgpackFields {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformed, msgpackFields, n)
	}

	ev := &cdc.Event{}
	for _, dst := range []*[]byte{&ev.Key, &ev.Table, &ev.Family, &ev.Qualifier, &ev.Value} {
		if *dst, err = dec.DecodeBytes(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if ev.Timestamp, err = dec.DecodeInt64(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.Delete, err = dec.DecodeBool(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ev, nil
}
