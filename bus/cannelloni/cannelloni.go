// Package cannelloni implements a bus that exchanges CAN frames
// over UDP with the cannelloni protocol.
package cannelloni

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/squadracorsepolito/acmeview/bus"
	"github.com/squadracorsepolito/acmeview/internal"
	"go.opentelemetry.io/otel/attribute"
)

// Kind is the registry kind of the cannelloni bus.
const Kind = "cannelloni"

const (
	maxPacketSize = 1500

	minReadBackoff = 5 * time.Millisecond
	maxReadBackoff = time.Second
)

func init() {
	bus.Register(Kind, func(cfg *bus.Config) (bus.Bus, error) {
		return Open(cfg)
	})
}

// Bus listens for cannelloni packets on a local UDP address
// and sends one packet per transmitted frame to the remote address.
type Bus struct {
	tel   *internal.Telemetry
	stats *internal.Stats

	conn   *net.UDPConn
	remote *net.UDPAddr

	sequenceNumber atomic.Uint32

	mux        sync.Mutex
	subscribed bool
	shutdown   bool
	wg         sync.WaitGroup
	cancel     context.CancelFunc

	receivedFrames atomic.Int64
	invalidPackets atomic.Int64
}

func Open(cfg *bus.Config) (*Bus, error) {
	local, err := net.ResolveUDPAddr("udp", cfg.LocalAddr)
	if err != nil {
		return nil, &bus.TransportError{Kind: Kind, Op: "resolve", Err: err}
	}

	remote, err := net.ResolveUDPAddr("udp", cfg.RemoteAddr)
	if err != nil {
		return nil, &bus.TransportError{Kind: Kind, Op: "resolve", Err: err}
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, &bus.TransportError{Kind: Kind, Op: "listen", Err: err}
	}

	tel := internal.NewTelemetry("bus", Kind)

	b := &Bus{
		tel:   tel,
		stats: internal.NewStats(tel.Logger()),

		conn:   conn,
		remote: remote,
	}

	tel.NewObservableCounter("received_frames", b.receivedFrames.Load)
	tel.NewObservableCounter("invalid_packets", b.invalidPackets.Load)

	tel.LogInfo("listening", "local", conn.LocalAddr().String(), "remote", remote.String())

	return b, nil
}

// LocalAddr returns the address the bus is listening on.
func (b *Bus) LocalAddr() net.Addr {
	return b.conn.LocalAddr()
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

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		b.stats.RunStats(ctx)
	}()
	go func() {
		defer b.wg.Done()
		b.runReceiver(ctx, handler)
	}()

	return nil
}

func (b *Bus) runReceiver(ctx context.Context, handler bus.Handler) {
	b.receive(ctx, b.conn.Read, handler)
}

// receive reads datagrams until the connection is closed or ctx is done.
// Consecutive read errors are retried with an exponential backoff.
func (b *Bus) receive(ctx context.Context, read func([]byte) (int, error), handler bus.Handler) {
	buf := make([]byte, maxPacketSize)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = minReadBackoff
	retry.MaxInterval = maxReadBackoff

	for {
		n, err := read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			wait := retry.NextBackOff()
			b.tel.LogError("failed to read datagram", err, "retry_in", wait)

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}

			continue
		}

		retry.Reset()

		b.stats.IncrementByteCountBy(n)
		b.handlePacket(ctx, buf[:n], handler)
	}
}

func (b *Bus) handlePacket(ctx context.Context, buf []byte, handler bus.Handler) {
	_, span := b.tel.NewTrace(ctx, "decode cannelloni packet")
	defer span.End()

	packet, err := DecodePacket(buf)
	if err != nil {
		b.invalidPackets.Add(1)
		b.tel.LogWarn("dropping invalid packet", "reason", err)
		return
	}

	span.SetAttributes(attribute.Int("message_count", len(packet.Messages)))

	for _, msg := range packet.Messages {
		if !msg.IsData() {
			continue
		}

		b.receivedFrames.Add(1)
		b.stats.IncrementItemCount()

		handler(bus.Frame{
			ID:       msg.ID & idMask,
			Data:     msg.Data,
			Extended: msg.IsExtended(),
			FD:       msg.FD,
		})
	}
}

func (b *Bus) Transmit(ctx context.Context, frame bus.Frame) error {
	if err := frame.Validate(); err != nil {
		return &bus.TransportError{Kind: Kind, Op: "transmit", Err: err}
	}

	b.mux.Lock()
	shutdown := b.shutdown
	b.mux.Unlock()

	if shutdown {
		return &bus.TransportError{Kind: Kind, Op: "transmit", Err: bus.ErrShutdown}
	}

	msg := &Message{
		ID:   frame.ID,
		FD:   frame.FD,
		Data: frame.Data,
	}
	if frame.Extended {
		msg.ID |= idExtendedFlag
	}

	seq := uint8(b.sequenceNumber.Add(1))
	packet := NewPacket(seq, msg)

	deadline, _ := ctx.Deadline()
	if err := b.conn.SetWriteDeadline(deadline); err != nil {
		return &bus.TransportError{Kind: Kind, Op: "transmit", Err: err}
	}

	if _, err := b.conn.WriteToUDP(packet.Encode(), b.remote); err != nil {
		return &bus.TransportError{Kind: Kind, Op: "transmit", Err: err}
	}

	return nil
}

func (b *Bus) Shutdown() error {
	b.mux.Lock()
	if b.shutdown {
		b.mux.Unlock()
		return nil
	}
	b.shutdown = true
	cancel := b.cancel
	b.mux.Unlock()

	err := b.conn.Close()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	b.tel.LogInfo("shut down")

	if err != nil {
		return &bus.TransportError{Kind: Kind, Op: "close", Err: err}
	}
	return nil
}
