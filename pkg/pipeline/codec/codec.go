// Package codec serializes dispatch events into the binary record published
// to the broker. Every codec is deterministic and Decode is the exact inverse
// of Encode.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/edgeflare/cellbridge/pkg/pipeline/cdc"
)

const Default = Proto

var (
	ErrUnknownCodec = errors.New("unknown codec")
	ErrMalformed    = errors.New("malformed event record")
)

// Codec encodes events for the wire.
type Codec interface {
	Name() string
	// Encode appends the encoded event to buf. On error the content of buf is unspecified.
	Encode(buf *bytes.Buffer, ev *cdc.Event) error
	// Decode parses one encoded event. The returned event does not alias data.
	Decode(data []byte) (*cdc.Event, error)
}

var (
	mu     sync.RWMutex
	codecs = map[string]Codec{}
)

// Register makes a codec available by name.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()
	codecs[c.Name()] = c
}

// Get returns the codec registered under name; an empty name selects Default.
func Get(name string) (Codec, error) {
	if name == "" {
		name = Default
	}
	mu.RLock()
	defer mu.RUnlock()
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
	return c, nil
}

// Names lists the registered codecs.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register(ProtoCodec{})
	Register(MsgpackCodec{})
}
