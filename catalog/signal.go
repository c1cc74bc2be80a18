package catalog

import (
	"fmt"
	"math"
)

// ByteOrder is the bit layout of a signal inside the frame payload.
type ByteOrder uint8

const (
	// LittleEndian is the Intel byte order. The start bit is the least significant bit.
	LittleEndian ByteOrder = iota
	// BigEndian is the Motorola byte order. The start bit is the most significant bit,
	// numbered as in DBC files (bit 7 of byte 0 is position 7, bit 0 of byte 1 is position 8).
	BigEndian
)

func (bo ByteOrder) String() string {
	switch bo {
	case LittleEndian:
		return "little_endian"
	case BigEndian:
		return "big_endian"
	default:
		return "unknown"
	}
}

// SignalDefinition describes a scaled numeric value packed into a frame payload.
type SignalDefinition struct {
	Name      string
	StartBit  int
	Length    int
	ByteOrder ByteOrder
	Signed    bool

	Scale  float64
	Offset float64

	// Minimum and Maximum are the declared physical range, nil when not declared.
	Minimum *float64
	Maximum *float64

	Unit string
}

// Bound returns a pointer to v, for declaring signal ranges.
func Bound(v float64) *float64 {
	return &v
}

// NextBit returns the payload position following pos while walking
// the signal from its start bit towards its opposite end.
// Little endian signals walk upwards from the least significant bit,
// big endian signals walk from the most significant bit following the DBC sawtooth.
func (s *SignalDefinition) NextBit(pos int) int {
	if s.ByteOrder == LittleEndian {
		return pos + 1
	}

	if pos%8 == 0 {
		return pos + 15
	}
	return pos - 1
}

// EndBit returns the payload position of the last bit of the signal.
func (s *SignalDefinition) EndBit() int {
	if s.ByteOrder == LittleEndian {
		return s.StartBit + s.Length - 1
	}

	pos := s.StartBit
	for range s.Length - 1 {
		pos = s.NextBit(pos)
	}
	return pos
}

func (s *SignalDefinition) validate(frameLength int) error {
	if s.Name == "" {
		return fmt.Errorf("%w: signal without name", ErrInvalidDefinition)
	}

	if s.Length < 1 || s.Length > 64 {
		return fmt.Errorf("%w: signal %q has length %d", ErrInvalidDefinition, s.Name, s.Length)
	}

	if s.ByteOrder != LittleEndian && s.ByteOrder != BigEndian {
		return fmt.Errorf("%w: signal %q has byte order %d", ErrInvalidDefinition, s.Name, s.ByteOrder)
	}

	if s.Scale == 0 || math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0) {
		return fmt.Errorf("%w: signal %q has scale %v", ErrInvalidDefinition, s.Name, s.Scale)
	}

	payloadBits := frameLength * 8
	if s.StartBit < 0 || s.StartBit >= payloadBits {
		return fmt.Errorf("%w: signal %q starts at bit %d outside a %d bytes payload", ErrInvalidDefinition, s.Name, s.StartBit, frameLength)
	}

	if end := s.EndBit(); end >= payloadBits {
		return fmt.Errorf("%w: signal %q ends at bit %d outside a %d bytes payload", ErrInvalidDefinition, s.Name, end, frameLength)
	}

	return nil
}
