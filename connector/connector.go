// Package connector contains the bounded queues that move items between goroutines.
package connector

import "errors"

var (
	// ErrClosed is returned when writing to a closed connector,
	// or when reading from a closed and drained one.
	ErrClosed = errors.New("connector: closed")
	// ErrFull is returned by TryWrite when the connector has no free space.
	ErrFull = errors.New("connector: full")
)

// Connector is a bounded multi-producer multi-consumer queue.
// After Close, readers receive the items still queued before getting [ErrClosed].
type Connector[T any] interface {
	// Write blocks until there is room for the item.
	Write(item T) error
	// TryWrite never blocks.
	TryWrite(item T) error
	Read() (T, error)
	Close()
}
