// Package mock provides an in-memory Producer for tests.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/edgeflare/cellbridge/pkg/pipeline"
)

// Producer records every message it is given. Handles are resolved
// immediately unless Delay or Hold is set.
type Producer struct {
	// FailAt maps a 1-based send sequence number to the error its handle reports.
	FailAt map[int]error
	// Delay resolves each handle from its own goroutine after the duration.
	Delay time.Duration
	// Hold leaves handles unresolved until Release is called.
	Hold bool
	// FlushErr is returned by Flush.
	FlushErr error

	mu       sync.Mutex
	messages []pipeline.Message
	held     []held
	flushes  int
	closed   bool
	acked    atomic.Int64
}

type held struct {
	future *pipeline.Future
	err    error
}

var _ pipeline.Producer = (*Producer)(nil)

func (p *Producer) Send(msg pipeline.Message) pipeline.Pending {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return pipeline.Resolved(pipeline.ErrProducerClosed)
	}
	p.messages = append(p.messages, msg)
	seq := len(p.messages)
	err := p.FailAt[seq]

	f := pipeline.NewFuture()
	if p.Hold {
		p.held = append(p.held, held{future: f, err: err})
		p.mu.Unlock()
		return f
	}
	p.mu.Unlock()

	if p.Delay > 0 {
		go func() {
			time.Sleep(p.Delay)
			p.resolve(f, err)
		}()
		return f
	}
	p.resolve(f, err)
	return f
}

func (p *Producer) resolve(f *pipeline.Future, err error) {
	p.acked.Add(1)
	f.Resolve(err)
}

// Release resolves every held handle.
func (p *Producer) Release() {
	p.mu.Lock()
	pending := p.held
	p.held = nil
	p.mu.Unlock()
	for _, h := range pending {
		p.resolve(h.future, h.err)
	}
}

func (p *Producer) Flush(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes++
	return p.FlushErr
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Messages returns a copy of the sent messages in send order.
func (p *Producer) Messages() []pipeline.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]pipeline.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Acked is the number of handles resolved so far.
func (p *Producer) Acked() int {
	return int(p.acked.Load())
}

// Held is the number of handles waiting for Release.
func (p *Producer) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

func (p *Producer) Flushes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushes
}
