package connector

import (
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// slot is a cell of the ring buffer. Its sequence number tells
// whether it is ready to be written (seq == pos) or read (seq == pos+1).
type slot[T any] struct {
	seq  atomic.Uint64
	data T
}

// RingBuffer implements a [Connector] with a lock-free bounded queue.
// Goroutines only fall back to the mutex to sleep when the buffer is full or empty.
type RingBuffer[T any] struct {
	// head is the next position to write
	head atomic.Uint64

	// used to avoid false sharing
	_ cpu.CacheLinePad

	// tail is the next position to read
	tail atomic.Uint64

	_ cpu.CacheLinePad

	// closed is used to indicate that the buffer is closed.
	closed atomic.Bool

	_ cpu.CacheLinePad

	// isFull is used to indicate that a writer is waiting for space.
	isFull atomic.Bool

	_ cpu.CacheLinePad

	// isEmpty is used to indicate that a reader is waiting for data.
	isEmpty atomic.Bool

	_ cpu.CacheLinePad

	capacity uint64
	capMask  uint64

	// notEmpty and notFull are used to signal that the buffer is not empty or full
	notEmpty *sync.Cond
	notFull  *sync.Cond
	mux      *sync.Mutex

	buffer []slot[T]
}

// NewRingBuffer returns a ring buffer whose capacity is
// the given one rounded up to a power of two.
func NewRingBuffer[T any](capacity uint32) *RingBuffer[T] {
	if capacity < 2 {
		capacity = 2
	}

	capacity--
	capacity |= capacity >> 1
	capacity |= capacity >> 2
	capacity |= capacity >> 4
	capacity |= capacity >> 8
	capacity |= capacity >> 16
	capacity++

	mux := &sync.Mutex{}

	rb := &RingBuffer[T]{
		capacity: uint64(capacity),
		capMask:  uint64(capacity) - 1,

		buffer: make([]slot[T], capacity),

		mux:      mux,
		notEmpty: sync.NewCond(mux),
		notFull:  sync.NewCond(mux),
	}

	for idx := range rb.buffer {
		rb.buffer[idx].seq.Store(uint64(idx))
	}

	return rb
}

func (rb *RingBuffer[T]) push(item T) bool {
	pos := rb.head.Load()
	for {
		slot := &rb.buffer[pos&rb.capMask]
		diff := int64(slot.seq.Load()) - int64(pos)

		switch {
		case diff == 0:
			// The slot is free, claim it by advancing head
			if rb.head.CompareAndSwap(pos, pos+1) {
				slot.data = item
				slot.seq.Store(pos + 1)
				return true
			}
			pos = rb.head.Load()

		case diff < 0:
			// The slot still holds an unread item of the previous lap
			return false

		default:
			// Another writer claimed the slot, retry
			pos = rb.head.Load()
		}
	}
}

func (rb *RingBuffer[T]) pop() (T, bool) {
	pos := rb.tail.Load()
	for {
		slot := &rb.buffer[pos&rb.capMask]
		diff := int64(slot.seq.Load()) - int64(pos+1)

		switch {
		case diff == 0:
			// The slot holds data, claim it by advancing tail
			if rb.tail.CompareAndSwap(pos, pos+1) {
				item := slot.data
				var zero T
				slot.data = zero
				slot.seq.Store(pos + rb.capacity)
				return item, true
			}
			pos = rb.tail.Load()

		case diff < 0:
			// Nothing has been published in this slot yet
			var zero T
			return zero, false

		default:
			// Another reader claimed the slot, retry
			pos = rb.tail.Load()
		}
	}
}

func (rb *RingBuffer[T]) signalNotEmpty() {
	if rb.isEmpty.Load() {
		rb.mux.Lock()
		rb.isEmpty.Store(false)
		rb.notEmpty.Broadcast()
		rb.mux.Unlock()
	}
}

func (rb *RingBuffer[T]) signalNotFull() {
	if rb.isFull.Load() {
		rb.mux.Lock()
		rb.isFull.Store(false)
		rb.notFull.Broadcast()
		rb.mux.Unlock()
	}
}

// Write adds an item to the [RingBuffer].
// It blocks until the buffer is not full.
//
// Returns [ErrClosed] if the [RingBuffer] is closed.
func (rb *RingBuffer[T]) Write(item T) error {
	if rb.closed.Load() {
		return ErrClosed
	}

	for !rb.push(item) {
		// The buffer is full, yield to other goroutines before sleeping
		runtime.Gosched()
		if rb.push(item) {
			break
		}

		rb.mux.Lock()

		if rb.closed.Load() {
			rb.mux.Unlock()
			return ErrClosed
		}

		rb.isFull.Store(true)

		// A reader may have freed a slot before seeing the flag
		if rb.push(item) {
			rb.mux.Unlock()
			break
		}

		rb.notFull.Wait()
		rb.mux.Unlock()

		if rb.closed.Load() {
			return ErrClosed
		}
	}

	rb.signalNotEmpty()

	return nil
}

// TryWrite adds an item to the [RingBuffer] without blocking.
//
// Returns [ErrFull] if there is no space and [ErrClosed] if the [RingBuffer] is closed.
func (rb *RingBuffer[T]) TryWrite(item T) error {
	if rb.closed.Load() {
		return ErrClosed
	}

	if !rb.push(item) {
		return ErrFull
	}

	rb.signalNotEmpty()

	return nil
}

// Read retrieves an item from the [RingBuffer].
// It blocks until the buffer is not empty.
//
// Returns [ErrClosed] if the [RingBuffer] is closed and empty.
func (rb *RingBuffer[T]) Read() (T, error) {
	item, ok := rb.pop()
	for !ok {
		// The buffer is empty, yield to other goroutines before sleeping
		runtime.Gosched()
		if item, ok = rb.pop(); ok {
			break
		}

		rb.mux.Lock()

		rb.isEmpty.Store(true)

		// A writer may have published an item before seeing the flag
		if item, ok = rb.pop(); ok {
			rb.mux.Unlock()
			break
		}

		if rb.closed.Load() {
			rb.mux.Unlock()
			return item, ErrClosed
		}

		rb.notEmpty.Wait()
		rb.mux.Unlock()

		item, ok = rb.pop()
	}

	rb.signalNotFull()

	return item, nil
}

// Len returns the number of items in the buffer.
func (rb *RingBuffer[T]) Len() int {
	tail := rb.tail.Load()
	return int(rb.head.Load() - tail)
}

// Close marks the [RingBuffer] as closed and wakes up every waiting goroutine.
func (rb *RingBuffer[T]) Close() {
	if !rb.closed.CompareAndSwap(false, true) {
		return
	}

	rb.mux.Lock()
	rb.notEmpty.Broadcast()
	rb.notFull.Broadcast()
	rb.mux.Unlock()
}
