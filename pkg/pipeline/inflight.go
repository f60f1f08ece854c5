package pipeline

import (
	"context"
	"sync"
)

// Inflight counts messages a producer has accepted but not yet resolved.
// Producers use it to implement Flush. The zero value is ready to use.
type Inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (c *Inflight) Add(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n == 0 {
		c.idle = make(chan struct{})
	}
	c.n += n
}

func (c *Inflight) Done(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || c.n == 0 {
		return
	}
	c.n -= n
	if c.n <= 0 {
		c.n = 0
		close(c.idle)
	}
}

func (c *Inflight) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Wait blocks until the count drops to zero or ctx is done.
func (c *Inflight) Wait(ctx context.Context) error {
	c.mu.Lock()
	if c.n == 0 {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
