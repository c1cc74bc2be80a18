//go:build linux

package socketcan

import (
	"context"
	"testing"
	"time"

	"github.com/squadracorsepolito/acmeview/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Bus_RejectsFD(t *testing.T) {
	b := &Bus{}

	err := b.Transmit(context.Background(), bus.Frame{ID: 1, Data: make([]byte, 12), FD: true})

	var transportErr *bus.TransportError
	assert.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, bus.ErrUnsupportedFrame)
}

// Test_Bus_VCAN needs a virtual interface:
//
//	ip link add dev vcan0 type vcan && ip link set up vcan0
func Test_Bus_VCAN(t *testing.T) {
	cfg := bus.NewDefaultConfig()
	cfg.Channel = "vcan0"
	cfg.ReceiveOwn = true

	b, err := Open(context.Background(), cfg)
	if err != nil {
		t.Skipf("vcan0 not available: %v", err)
	}

	frames := make(chan bus.Frame, 1)
	require.NoError(t, b.Subscribe(func(frame bus.Frame) {
		select {
		case frames <- frame:
		default:
		}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, b.Transmit(ctx, bus.Frame{ID: 0x123, Data: []byte{1, 2, 3}}))

	select {
	case frame := <-frames:
		assert.Equal(t, uint32(0x123), frame.ID)
		assert.Equal(t, []byte{1, 2, 3}, frame.Data)
	case <-ctx.Done():
		t.Error("own frame not received")
	}

	assert.NoError(t, b.Shutdown())
}
