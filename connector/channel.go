package connector

import (
	"sync"
	"sync/atomic"
)

// Channel implements a [Connector] using a channel.
type Channel[T any] struct {
	buffer chan T
	done   chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewChannel creates a new [Channel] with the given capacity.
func NewChannel[T any](size uint64) *Channel[T] {
	return &Channel[T]{
		buffer: make(chan T, size),
		done:   make(chan struct{}),
	}
}

func (c *Channel[T]) Write(item T) error {
	if c.closed.Load() {
		return ErrClosed
	}

	// Try to send the item without blocking
	select {
	case c.buffer <- item:
		return nil
	default:
	}

	// Block until there is space or the channel is closed
	select {
	case c.buffer <- item:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Channel[T]) TryWrite(item T) error {
	if c.closed.Load() {
		return ErrClosed
	}

	select {
	case c.buffer <- item:
		return nil
	default:
		return ErrFull
	}
}

func (c *Channel[T]) Read() (T, error) {
	// Try to receive without blocking
	select {
	case item := <-c.buffer:
		return item, nil
	default:
	}

	select {
	case item := <-c.buffer:
		return item, nil
	case <-c.done:
		// Drain what was written before closing
		select {
		case item := <-c.buffer:
			return item, nil
		default:
			var zero T
			return zero, ErrClosed
		}
	}
}

func (c *Channel[T]) Len() int {
	return len(c.buffer)
}

// Close closes the [Channel] connector.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}
