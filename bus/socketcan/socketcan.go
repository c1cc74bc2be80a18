//go:build linux

// Package socketcan implements a bus on a Linux SocketCAN interface.
package socketcan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/squadracorsepolito/acmeview/bus"
	"github.com/squadracorsepolito/acmeview/internal"
	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// Kind is the registry kind of the SocketCAN bus.
const Kind = "socketcan"

func init() {
	bus.Register(Kind, func(cfg *bus.Config) (bus.Bus, error) {
		return Open(context.Background(), cfg)
	})
}

// Bus is a SocketCAN raw socket. FD frames are not supported by the socket
// and are rejected by Transmit and skipped by the receiver.
type Bus struct {
	tel *internal.Telemetry

	channel string

	rxConn net.Conn
	txConn net.Conn
	recv   *socketcan.Receiver
	tx     *socketcan.Transmitter
	txMux  sync.Mutex

	mux        sync.Mutex
	subscribed bool
	shutdown   bool
	wg         sync.WaitGroup

	receivedFrames atomic.Int64
	skippedFrames  atomic.Int64
}

// Open dials the interface named by cfg.Channel.
// When cfg.ReceiveOwn is set, frames are transmitted from a second socket,
// so the kernel loopback delivers them to the receiving one.
func Open(ctx context.Context, cfg *bus.Config) (*Bus, error) {
	tel := internal.NewTelemetry("bus", Kind)

	rxConn, err := socketcan.DialContext(ctx, "can", cfg.Channel)
	if err != nil {
		return nil, &bus.TransportError{Kind: Kind, Op: "dial", Err: err}
	}

	txConn := rxConn
	if cfg.ReceiveOwn {
		txConn, err = socketcan.DialContext(ctx, "can", cfg.Channel)
		if err != nil {
			rxConn.Close()
			return nil, &bus.TransportError{Kind: Kind, Op: "dial", Err: err}
		}
	}

	if cfg.FD {
		tel.LogWarn("CAN FD frames are not supported, only classic frames are exchanged", "channel", cfg.Channel)
	}

	b := &Bus{
		tel: tel,

		channel: cfg.Channel,

		rxConn: rxConn,
		txConn: txConn,
		recv:   socketcan.NewReceiver(rxConn),
		tx:     socketcan.NewTransmitter(txConn),
	}

	tel.NewObservableCounter("received_frames", b.receivedFrames.Load)
	tel.NewObservableCounter("skipped_frames", b.skippedFrames.Load)

	tel.LogInfo("opened", "channel", cfg.Channel, "bitrate", cfg.Bitrate, "receive_own", cfg.ReceiveOwn)

	return b, nil
}

func (b *Bus) Subscribe(handler bus.Handler) error {
	b.mux.Lock()
	defer b.mux.Unlock()

	if b.shutdown {
		return bus.ErrShutdown
	}

	if b.subscribed {
		return bus.ErrAlreadySubscribed
	}
	b.subscribed = true

	b.wg.Add(1)
	go b.runReceiver(handler)

	return nil
}

func (b *Bus) runReceiver(handler bus.Handler) {
	defer b.wg.Done()

	for b.recv.Receive() {
		if b.recv.HasErrorFrame() {
			b.skippedFrames.Add(1)
			continue
		}

		frame := b.recv.Frame()
		if frame.IsRemote {
			b.skippedFrames.Add(1)
			continue
		}

		b.receivedFrames.Add(1)

		handler(bus.Frame{
			ID:       frame.ID,
			Data:     slices.Clone(frame.Data[:frame.Length]),
			Extended: frame.IsExtended,
		})
	}

	if err := b.recv.Err(); err != nil && !b.isShutdown() {
		b.tel.LogError("receiver stopped", err, "channel", b.channel)
	}
}

func (b *Bus) isShutdown() bool {
	b.mux.Lock()
	defer b.mux.Unlock()

	return b.shutdown
}

func (b *Bus) Transmit(ctx context.Context, frame bus.Frame) error {
	if frame.FD || len(frame.Data) > 8 {
		return &bus.TransportError{Kind: Kind, Op: "transmit", Err: fmt.Errorf("%w: %d bytes FD frame", bus.ErrUnsupportedFrame, len(frame.Data))}
	}

	if err := frame.Validate(); err != nil {
		return &bus.TransportError{Kind: Kind, Op: "transmit", Err: err}
	}

	if b.isShutdown() {
		return &bus.TransportError{Kind: Kind, Op: "transmit", Err: bus.ErrShutdown}
	}

	canFrame := can.Frame{
		ID:         frame.ID,
		Length:     uint8(len(frame.Data)),
		IsExtended: frame.Extended,
	}
	copy(canFrame.Data[:], frame.Data)

	b.txMux.Lock()
	defer b.txMux.Unlock()

	if err := b.tx.TransmitFrame(ctx, canFrame); err != nil {
		return &bus.TransportError{Kind: Kind, Op: "transmit", Err: err}
	}

	return nil
}

// Shutdown closes the sockets and waits for the receiver to stop.
func (b *Bus) Shutdown() error {
	b.mux.Lock()
	if b.shutdown {
		b.mux.Unlock()
		return nil
	}
	b.shutdown = true
	b.mux.Unlock()

	err := b.rxConn.Close()
	if b.txConn != b.rxConn {
		err = errors.Join(err, b.txConn.Close())
	}

	b.wg.Wait()

	b.tel.LogInfo("shut down", "channel", b.channel)

	if err != nil {
		return &bus.TransportError{Kind: Kind, Op: "close", Err: err}
	}
	return nil
}
