package main

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/squadracorsepolito/acmeview/bus"
	"github.com/squadracorsepolito/acmeview/catalog"
	"github.com/squadracorsepolito/acmeview/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Simulator_Round(t *testing.T) {
	assert := assert.New(t)

	cat, err := catalog.New(
		&catalog.FrameDefinition{
			ID:     0x100,
			Name:   "Speed",
			Length: 1,
			Signals: []*catalog.SignalDefinition{
				{Name: "kph", StartBit: 0, Length: 8, Scale: 1, Minimum: catalog.Bound(0), Maximum: catalog.Bound(255)},
			},
		},
		&catalog.FrameDefinition{
			ID:     0x101,
			Name:   "Small",
			Length: 1,
			Signals: []*catalog.SignalDefinition{
				// the default range does not fit 4 bits
				{Name: "nibble", StartBit: 0, Length: 4, Scale: 1},
				{Name: "flag", StartBit: 4, Length: 1, Scale: 1, Minimum: catalog.Bound(0), Maximum: catalog.Bound(1)},
			},
		},
	)
	require.NoError(t, err)

	busCfg := bus.NewDefaultConfig()
	busCfg.ReceiveOwn = false
	lb := bus.NewLoopback(busCfg)
	defer lb.Shutdown()

	sim := newSimulator(cat, lb, rand.New(rand.NewPCG(1, 2)))

	for range 50 {
		sent, err := sim.round(context.Background())
		require.NoError(t, err)
		assert.Equal(2, sent)
	}

	frames := lb.Sent()
	require.Len(t, frames, 100)

	for _, frame := range frames {
		def, ok := cat.Lookup(frame.ID)
		require.True(t, ok)

		values, err := codec.Decode(def, frame.Data)
		require.NoError(t, err)

		for idx, val := range values {
			sig := def.Signals[idx]
			if sig.Minimum != nil {
				assert.GreaterOrEqual(val.Value, *sig.Minimum)
				assert.LessOrEqual(val.Value, *sig.Maximum)
			}
		}
	}
}
