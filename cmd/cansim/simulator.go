package main

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"

	"github.com/squadracorsepolito/acmeview/bus"
	"github.com/squadracorsepolito/acmeview/catalog"
	"github.com/squadracorsepolito/acmeview/codec"
	"github.com/squadracorsepolito/acmeview/view"
)

type simulator struct {
	cat *catalog.Catalog
	bus bus.Bus
	rnd *rand.Rand
}

func newSimulator(cat *catalog.Catalog, b bus.Bus, rnd *rand.Rand) *simulator {
	return &simulator{
		cat: cat,
		bus: b,
		rnd: rnd,
	}
}

// value returns a random value on the raw grid of the signal,
// inside the declared range (or the default cell range when not declared).
func (s *simulator) value(sig *catalog.SignalDefinition) float64 {
	lower := view.DefaultMinimum
	if sig.Minimum != nil {
		lower = *sig.Minimum
	}

	upper := view.DefaultMaximum
	if sig.Maximum != nil {
		upper = *sig.Maximum
	}

	v := lower + s.rnd.Float64()*(upper-lower)

	return math.Round((v-sig.Offset)/sig.Scale)*sig.Scale + sig.Offset
}

func (s *simulator) values(frame *catalog.FrameDefinition) []codec.SignalValue {
	values := make([]codec.SignalValue, 0, len(frame.Signals))
	for _, sig := range frame.Signals {
		values = append(values, codec.SignalValue{Name: sig.Name, Value: s.value(sig)})
	}
	return values
}

// round transmits every frame of the catalog once.
// Signals whose random value does not fit the bit field are left at zero.
func (s *simulator) round(ctx context.Context) (int, error) {
	sent := 0
	var errs []error

	for _, frame := range s.cat.Frames() {
		values := s.values(frame)

		data, err := codec.Encode(frame, values)
		if errors.Is(err, codec.ErrValueOutOfEncodableRange) {
			data, err = s.encodeFitting(frame, values)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		err = s.bus.Transmit(ctx, bus.Frame{
			ID:       frame.ID,
			Data:     data,
			Extended: frame.Extended,
			FD:       frame.FD,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}

		sent++
	}

	return sent, errors.Join(errs...)
}

func (s *simulator) encodeFitting(frame *catalog.FrameDefinition, values []codec.SignalValue) ([]byte, error) {
	fitting := make([]codec.SignalValue, 0, len(values))
	for _, val := range values {
		if _, err := codec.Encode(frame, []codec.SignalValue{val}); err == nil {
			fitting = append(fitting, val)
		}
	}
	return codec.Encode(frame, fitting)
}
