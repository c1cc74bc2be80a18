// Package codec converts frame payloads to physical signal values and back,
// following the bit layouts of a catalog.
package codec

import (
	"errors"
	"fmt"
	"math"

	"github.com/squadracorsepolito/acmeview/catalog"
)

var (
	// ErrFrameLengthMismatch is returned when a payload is shorter than the frame length.
	ErrFrameLengthMismatch = errors.New("frame length mismatch")
	// ErrValueOutOfEncodableRange is returned when a raw value does not fit its bit field.
	ErrValueOutOfEncodableRange = errors.New("value out of encodable range")
)

// SignalValue is the physical value of a signal.
type SignalValue struct {
	Name  string
	Value float64
}

// Decode extracts every signal of the frame from data, in declaration order.
// Values outside the declared range of a signal are returned as they are.
func Decode(frame *catalog.FrameDefinition, data []byte) ([]SignalValue, error) {
	if len(data) < frame.Length {
		return nil, fmt.Errorf("%w: frame %q expects %d bytes, got %d", ErrFrameLengthMismatch, frame.Name, frame.Length, len(data))
	}

	values := make([]SignalValue, 0, len(frame.Signals))
	for _, sig := range frame.Signals {
		values = append(values, SignalValue{
			Name:  sig.Name,
			Value: toPhysical(sig, extractRaw(sig, data)),
		})
	}

	return values, nil
}

// Encode packs the given values into a payload of the frame length.
// Signals without a value are encoded as zero.
func Encode(frame *catalog.FrameDefinition, values []SignalValue) ([]byte, error) {
	data := make([]byte, frame.Length)

	for _, val := range values {
		sig, ok := frame.Signal(val.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in frame %q", catalog.ErrUnknownSignalName, val.Name, frame.Name)
		}

		raw, err := toRaw(sig, val.Value)
		if err != nil {
			return nil, fmt.Errorf("frame %q: %w", frame.Name, err)
		}

		insertRaw(sig, data, raw)
	}

	return data, nil
}

func toPhysical(sig *catalog.SignalDefinition, raw uint64) float64 {
	if !sig.Signed {
		return float64(raw)*sig.Scale + sig.Offset
	}

	signed := int64(raw)
	if sig.Length < 64 && raw&(1<<(sig.Length-1)) != 0 {
		signed = int64(raw | ^lengthMask(sig.Length))
	}
	return float64(signed)*sig.Scale + sig.Offset
}

func toRaw(sig *catalog.SignalDefinition, value float64) (uint64, error) {
	raw := math.Round((value - sig.Offset) / sig.Scale)

	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, fmt.Errorf("%w: signal %q cannot encode %v", ErrValueOutOfEncodableRange, sig.Name, value)
	}

	if !sig.Signed {
		if raw < 0 || raw >= math.Ldexp(1, sig.Length) {
			return 0, fmt.Errorf("%w: signal %q cannot encode %v in %d unsigned bits", ErrValueOutOfEncodableRange, sig.Name, value, sig.Length)
		}
		return uint64(raw), nil
	}

	limit := math.Ldexp(1, sig.Length-1)
	if raw < -limit || raw >= limit {
		return 0, fmt.Errorf("%w: signal %q cannot encode %v in %d signed bits", ErrValueOutOfEncodableRange, sig.Name, value, sig.Length)
	}
	return uint64(int64(raw)) & lengthMask(sig.Length), nil
}

func lengthMask(length int) uint64 {
	if length >= 64 {
		return math.MaxUint64
	}
	return 1<<length - 1
}
