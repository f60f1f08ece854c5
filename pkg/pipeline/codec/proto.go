package codec

import (
	"bytes"
	"fmt"

	"github.com/edgeflare/cellbridge/pkg/pipeline/cdc"
	"google.golang.org/protobuf/encoding/protowire"
)

const Proto = "proto"

// Field numbers of the event record:
//
//	message CellEvent {
//	  bytes key = 1;
//	  bytes table = 2;
//	  bytes family = 3;
//	  bytes qualifier = 4;
//	  bytes value = 5;
//	  int64 timestamp = 6;
//	  bool delete = 7;
//	}
const (
	fieldKey protowire.Number = iota + 1
	fieldTable
	fieldFamily
	fieldQualifier
	fieldValue
	fieldTimestamp
	fieldDelete
)

// ProtoCodec writes events in protobuf wire format. Fields are emitted in
// field-number order and zero values are omitted.
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return Proto }

func (ProtoCodec) Encode(buf *bytes.Buffer, ev *cdc.Event) error {
	if ev == nil {
		return fmt.Errorf("%s: nil event", Proto)
	}

	b := buf.AvailableBuffer()
	b = appendBytes(b, fieldKey, ev.Key)
	b = appendBytes(b, fieldTable, ev.Table)
	b = appendBytes(b, fieldFamily, ev.Family)
	b = appendBytes(b, fieldQualifier, ev.Qualifier)
	b = appendBytes(b, fieldValue, ev.Value)
	if ev.Timestamp != 0 {
		b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ev.Timestamp))
	}
	if ev.Delete {
		b = protowire.AppendTag(b, fieldDelete, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	_, err := buf.Write(b)
	return err
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func (ProtoCodec) Decode(data []byte) (*cdc.Event, error) {
	ev := &cdc.Event{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.BytesType && num >= fieldKey && num <= fieldValue:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			data = data[n:]
			*bytesField(ev, num) = append([]byte(nil), v...)
		case typ == protowire.VarintType && (num == fieldTimestamp || num == fieldDelete):
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			data = data[n:]
			if num == fieldTimestamp {
				ev.Timestamp = int64(v)
			} else {
				ev.Delete = protowire.DecodeBool(v)
			}
		default:
			// unknown fields are skipped so newer writers stay readable
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return ev, nil
}

func bytesField(ev *cdc.Event, num protowire.Number) *[]byte {
	switch num {
	case fieldKey:
		return &ev.Key
	case fieldTable:
		return &ev.Table
	case fieldFamily:
		return &ev.Family
	case fieldQualifier:
		return &ev.Qualifier
	default:
		return &ev.Value
	}
}
