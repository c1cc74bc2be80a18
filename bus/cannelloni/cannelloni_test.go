package cannelloni

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/squadracorsepolito/acmeview/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Bus_Exchange(t *testing.T) {
	assert := assert.New(t)

	rxCfg := bus.NewDefaultConfig()
	rxCfg.LocalAddr = "127.0.0.1:0"
	rxCfg.RemoteAddr = "127.0.0.1:9"

	rx, err := Open(rxCfg)
	require.NoError(t, err)

	frames := make(chan bus.Frame, 4)
	require.NoError(t, rx.Subscribe(func(frame bus.Frame) { frames <- frame }))

	txCfg := bus.NewDefaultConfig()
	txCfg.LocalAddr = "127.0.0.1:0"
	txCfg.RemoteAddr = rx.LocalAddr().String()

	tx, err := Open(txCfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, tx.Transmit(ctx, bus.Frame{ID: 0x1ABCDEF, Extended: true, Data: []byte{9, 8, 7}}))
	require.NoError(t, tx.Transmit(ctx, bus.Frame{ID: 0x10, FD: true, Data: make([]byte, 16)}))

	for _, expected := range []bus.Frame{
		{ID: 0x1ABCDEF, Extended: true, Data: []byte{9, 8, 7}},
		{ID: 0x10, FD: true, Data: make([]byte, 16)},
	} {
		select {
		case frame := <-frames:
			assert.Equal(expected, frame)
		case <-ctx.Done():
			t.Fatal("frame not received")
		}
	}

	assert.NoError(tx.Shutdown())
	assert.NoError(rx.Shutdown())

	err = tx.Transmit(context.Background(), bus.Frame{ID: 1})
	assert.ErrorIs(err, bus.ErrShutdown)
}

func Test_Bus_ReadErrorBackoff(t *testing.T) {
	assert := assert.New(t)

	cfg := bus.NewDefaultConfig()
	cfg.LocalAddr = "127.0.0.1:0"
	cfg.RemoteAddr = "127.0.0.1:9"

	b, err := Open(cfg)
	require.NoError(t, err)
	defer b.Shutdown()

	packet := NewPacket(1, &Message{ID: 0x42, Data: []byte{1, 2}}).Encode()

	var calls atomic.Int32
	read := func(buf []byte) (int, error) {
		switch calls.Add(1) {
		case 1, 2, 3:
			return 0, errors.New("connection refused")
		case 4:
			return copy(buf, packet), nil
		default:
			return 0, errors.New("network is unreachable")
		}
	}

	frames := make(chan bus.Frame, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.receive(ctx, read, func(frame bus.Frame) { frames <- frame })
		close(done)
	}()

	select {
	case frame := <-frames:
		assert.Equal(uint32(0x42), frame.ID)
		assert.Equal([]byte{1, 2}, frame.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received after read errors")
	}

	// failing reads wait between retries instead of spinning
	time.Sleep(100 * time.Millisecond)
	assert.Less(calls.Load(), int32(20))

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not stop on cancel")
	}
}

func Test_Bus_ReceiveStopsOnClose(t *testing.T) {
	cfg := bus.NewDefaultConfig()
	cfg.LocalAddr = "127.0.0.1:0"
	cfg.RemoteAddr = "127.0.0.1:9"

	b, err := Open(cfg)
	require.NoError(t, err)
	defer b.Shutdown()

	done := make(chan struct{})
	go func() {
		b.receive(context.Background(), func([]byte) (int, error) { return 0, net.ErrClosed }, func(bus.Frame) {})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("receiver did not stop on a closed connection")
	}
}
