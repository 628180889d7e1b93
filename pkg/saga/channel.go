package saga

import (
	"context"
	"sync"

	"github.com/flemzord/statekit/pkg/action"
)

// Channel buffers every action matching its pattern from the moment it is
// created until it is closed.
type Channel struct {
	rt    *Runtime
	match func(action.Action) bool

	mu     sync.Mutex
	queue  []action.Action
	ready  chan struct{}
	closed chan struct{}
	once   sync.Once
}

func (c *Channel) put(a action.Action) {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return
	default:
	}
	c.queue = append(c.queue, a)
	c.mu.Unlock()

	select {
	case c.ready <- struct{}{}:
	default:
	}
}

// Take returns the oldest buffered action, waiting for one if necessary.
func (c *Channel) Take(ctx context.Context) (action.Action, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			a := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return a, nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return action.Action{}, ctx.Err()
		case <-c.closed:
			return action.Action{}, ErrChannelClosed
		case <-c.ready:
		}
	}
}

// Len returns the number of buffered actions.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// drain removes and returns every buffered action.
func (c *Channel) drain() []action.Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := c.queue
	c.queue = nil
	return dropped
}

// Close detaches the channel from the runtime. Pending and future Takes
// return ErrChannelClosed once the buffer is empty.
func (c *Channel) Close() {
	c.once.Do(func() {
		c.rt.detach(c)
		close(c.closed)
	})
}
