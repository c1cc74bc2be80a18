package bus

import (
	"context"
	"slices"
	"sync"

	"github.com/squadracorsepolito/acmeview/connector"
	"github.com/squadracorsepolito/acmeview/internal"
)

// LoopbackKind is the registry kind of [Loopback].
const LoopbackKind = "loopback"

func init() {
	Register(LoopbackKind, func(cfg *Config) (Bus, error) {
		return NewLoopback(cfg), nil
	})
}

// Loopback is an in-memory bus. Frames passed to Inject, and transmitted frames
// when ReceiveOwn is set, are delivered to the subscriber by a dedicated goroutine.
type Loopback struct {
	l *internal.Logger

	receiveOwn bool

	queue *connector.Channel[Frame]
	wg    sync.WaitGroup

	mux        sync.Mutex
	subscribed bool
	shutdown   bool
	sent       []Frame
}

func NewLoopback(cfg *Config) *Loopback {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}

	return &Loopback{
		l: internal.NewLogger("bus", LoopbackKind),

		receiveOwn: cfg.ReceiveOwn,

		queue: connector.NewChannel[Frame](uint64(size)),
	}
}

func (lb *Loopback) Subscribe(handler Handler) error {
	lb.mux.Lock()
	defer lb.mux.Unlock()

	if lb.shutdown {
		return ErrShutdown
	}

	if lb.subscribed {
		return ErrAlreadySubscribed
	}
	lb.subscribed = true

	lb.wg.Add(1)
	go func() {
		defer lb.wg.Done()

		for {
			frame, err := lb.queue.Read()
			if err != nil {
				return
			}
			handler(frame)
		}
	}()

	return nil
}

// Inject simulates the reception of a frame.
// It blocks while the delivery queue is full.
func (lb *Loopback) Inject(frame Frame) error {
	frame.Data = slices.Clone(frame.Data)

	if err := lb.queue.Write(frame); err != nil {
		return ErrShutdown
	}
	return nil
}

func (lb *Loopback) Transmit(ctx context.Context, frame Frame) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Kind: LoopbackKind, Op: "transmit", Err: err}
	}

	if err := frame.Validate(); err != nil {
		return &TransportError{Kind: LoopbackKind, Op: "transmit", Err: err}
	}

	frame.Data = slices.Clone(frame.Data)

	lb.mux.Lock()
	if lb.shutdown {
		lb.mux.Unlock()
		return &TransportError{Kind: LoopbackKind, Op: "transmit", Err: ErrShutdown}
	}
	lb.sent = append(lb.sent, frame)
	lb.mux.Unlock()

	if lb.receiveOwn {
		if err := lb.queue.TryWrite(frame); err != nil {
			lb.l.Warn("dropping own frame", "id", frame.ID, "reason", err)
		}
	}

	return nil
}

// Sent returns the frames transmitted so far.
func (lb *Loopback) Sent() []Frame {
	lb.mux.Lock()
	defer lb.mux.Unlock()

	return slices.Clone(lb.sent)
}

func (lb *Loopback) Shutdown() error {
	lb.mux.Lock()
	if lb.shutdown {
		lb.mux.Unlock()
		return nil
	}
	lb.shutdown = true
	lb.mux.Unlock()

	lb.queue.Close()
	lb.wg.Wait()

	lb.l.Info("shut down")

	return nil
}
