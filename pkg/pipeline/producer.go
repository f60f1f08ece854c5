package pipeline

import (
	"context"
	"sync"
)

// Message is one record handed to a producer.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Pending is the result handle of an asynchronous send.
type Pending interface {
	// Wait blocks until the broker acknowledged or rejected the message, or ctx is done.
	Wait(ctx context.Context) error
}

// A Producer is the broker client used by the dispatcher. All methods must
// be safe for concurrent use.
type Producer interface {
	// Send hands msg to the broker client and returns without waiting for the acknowledgement.
	Send(msg Message) Pending

	// Flush forces delivery of anything the client still buffers and waits for it.
	Flush(ctx context.Context) error

	Close() error
}

// Future is a Pending resolved exactly once by the producer that created it.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve records the outcome. Only the first call has an effect.
func (f *Future) Resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolved returns a Pending that is already complete.
func Resolved(err error) Pending {
	f := NewFuture()
	f.Resolve(err)
	return f
}
