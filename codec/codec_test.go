package codec

import (
	"math/rand"
	"testing"

	"github.com/squadracorsepolito/acmeview/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.einride.tech/can"
)

func speedFrame() *catalog.FrameDefinition {
	return &catalog.FrameDefinition{
		ID:     0x100,
		Name:   "Speed",
		Length: 1,
		Signals: []*catalog.SignalDefinition{
			{Name: "kph", StartBit: 0, Length: 8, Scale: 1, Minimum: catalog.Bound(0), Maximum: catalog.Bound(255)},
		},
	}
}

// fullFrame covers every bit of an 8 bytes payload with both byte orders.
func fullFrame() *catalog.FrameDefinition {
	return &catalog.FrameDefinition{
		ID:     0x200,
		Name:   "Full",
		Length: 8,
		Signals: []*catalog.SignalDefinition{
			{Name: "a", StartBit: 0, Length: 12, Scale: 1},
			{Name: "b", StartBit: 12, Length: 4, Signed: true, Scale: 1},
			{Name: "c", StartBit: 23, Length: 16, ByteOrder: catalog.BigEndian, Scale: 1},
			{Name: "d", StartBit: 32, Length: 32, Signed: true, Scale: 1},
		},
	}
}

func Test_Decode(t *testing.T) {
	assert := assert.New(t)

	values, err := Decode(speedFrame(), []byte{50})
	require.NoError(t, err)
	assert.Equal([]SignalValue{{Name: "kph", Value: 50}}, values)

	_, err = Decode(speedFrame(), []byte{})
	assert.ErrorIs(err, ErrFrameLengthMismatch)
}

func Test_Decode_ScaleOffsetSigned(t *testing.T) {
	assert := assert.New(t)

	frame := &catalog.FrameDefinition{
		ID:     0x300,
		Name:   "Engine",
		Length: 3,
		Signals: []*catalog.SignalDefinition{
			{Name: "temperature", StartBit: 7, Length: 16, ByteOrder: catalog.BigEndian, Signed: true, Scale: 0.5, Offset: -40},
			{Name: "gear", StartBit: 16, Length: 4, Signed: true, Scale: 1},
		},
	}

	// temperature raw is 0xFFFE (-2), gear raw is 0xF (-1)
	values, err := Decode(frame, []byte{0xFF, 0xFE, 0x0F})
	require.NoError(t, err)
	assert.Equal("temperature", values[0].Name)
	assert.Equal(-41.0, values[0].Value)
	assert.Equal("gear", values[1].Name)
	assert.Equal(-1.0, values[1].Value)
}

func Test_Decode_OutOfDeclaredRange(t *testing.T) {
	frame := &catalog.FrameDefinition{
		ID:     0x10,
		Name:   "Level",
		Length: 1,
		Signals: []*catalog.SignalDefinition{
			{Name: "level", StartBit: 0, Length: 8, Scale: 1, Minimum: catalog.Bound(0), Maximum: catalog.Bound(100)},
		},
	}

	values, err := Decode(frame, []byte{200})
	require.NoError(t, err)
	assert.Equal(t, 200.0, values[0].Value)
}

func Test_Encode(t *testing.T) {
	assert := assert.New(t)

	data, err := Encode(speedFrame(), []SignalValue{{Name: "kph", Value: 50}})
	require.NoError(t, err)
	assert.Equal([]byte{50}, data)

	data, err = Encode(fullFrame(), nil)
	require.NoError(t, err)
	assert.Equal(make([]byte, 8), data)

	_, err = Encode(speedFrame(), []SignalValue{{Name: "mph", Value: 1}})
	assert.ErrorIs(err, catalog.ErrUnknownSignalName)
}

func Test_Encode_OutOfEncodableRange(t *testing.T) {
	tests := []struct {
		name  string
		sig   *catalog.SignalDefinition
		value float64
	}{
		{"unsigned overflow", &catalog.SignalDefinition{Name: "s", Length: 8, Scale: 1}, 300},
		{"unsigned negative", &catalog.SignalDefinition{Name: "s", Length: 8, Scale: 1}, -1},
		{"signed overflow", &catalog.SignalDefinition{Name: "s", Length: 8, Signed: true, Scale: 1}, 128},
		{"signed underflow", &catalog.SignalDefinition{Name: "s", Length: 8, Signed: true, Scale: 1}, -129},
		{"scaled overflow", &catalog.SignalDefinition{Name: "s", Length: 4, Scale: 0.5}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := &catalog.FrameDefinition{Name: "F", Length: 1, Signals: []*catalog.SignalDefinition{tt.sig}}
			_, err := Encode(frame, []SignalValue{{Name: "s", Value: tt.value}})
			assert.ErrorIs(t, err, ErrValueOutOfEncodableRange)
		})
	}
}

func Test_Encode_SignedBoundaries(t *testing.T) {
	assert := assert.New(t)

	frame := &catalog.FrameDefinition{
		Name:    "F",
		Length:  1,
		Signals: []*catalog.SignalDefinition{{Name: "s", Length: 8, Signed: true, Scale: 1}},
	}

	data, err := Encode(frame, []SignalValue{{Name: "s", Value: -128}})
	require.NoError(t, err)
	assert.Equal([]byte{0x80}, data)

	data, err = Encode(frame, []SignalValue{{Name: "s", Value: 127}})
	require.NoError(t, err)
	assert.Equal([]byte{0x7F}, data)
}

func Test_Encode_ScaleOffset(t *testing.T) {
	assert := assert.New(t)

	frame := &catalog.FrameDefinition{
		Name:   "Engine",
		Length: 2,
		Signals: []*catalog.SignalDefinition{
			{Name: "temperature", StartBit: 7, Length: 16, ByteOrder: catalog.BigEndian, Signed: true, Scale: 0.5, Offset: -40},
		},
	}

	data, err := Encode(frame, []SignalValue{{Name: "temperature", Value: -41}})
	require.NoError(t, err)
	assert.Equal([]byte{0xFF, 0xFE}, data)

	values, err := Decode(frame, data)
	require.NoError(t, err)
	assert.Equal(-41.0, values[0].Value)
}

func Test_Codec_RoundTrip(t *testing.T) {
	frame := fullFrame()
	rnd := rand.New(rand.NewSource(1))

	for range 1000 {
		data := make([]byte, frame.Length)
		rnd.Read(data)

		values, err := Decode(frame, data)
		require.NoError(t, err)

		encoded, err := Encode(frame, values)
		require.NoError(t, err)
		require.Equal(t, data, encoded)
	}
}

func Test_Codec_RoundTripFD(t *testing.T) {
	frame := &catalog.FrameDefinition{
		Name:   "Wide",
		FD:     true,
		Length: 64,
		Signals: []*catalog.SignalDefinition{
			{Name: "head", StartBit: 0, Length: 64, Scale: 1},
			{Name: "tail", StartBit: 504, Length: 8, Scale: 1},
			{Name: "cross", StartBit: 263, Length: 24, ByteOrder: catalog.BigEndian, Signed: true, Scale: 1},
		},
	}

	data := make([]byte, 64)
	data[63] = 0xAB
	data[32] = 0x80
	data[34] = 0x01

	values, err := Decode(frame, data)
	require.NoError(t, err)
	assert.Equal(t, 171.0, values[1].Value)
	assert.Equal(t, float64(-0x800000+1), values[2].Value)

	encoded, err := Encode(frame, values)
	require.NoError(t, err)
	assert.Equal(t, data, encoded)
}

func Test_Decode_MatchesEinride(t *testing.T) {
	signals := []*catalog.SignalDefinition{
		{Name: "le_0_8", StartBit: 0, Length: 8, Scale: 1},
		{Name: "le_3_13", StartBit: 3, Length: 13, Scale: 1},
		{Name: "le_20_32", StartBit: 20, Length: 32, Scale: 1},
		{Name: "be_7_8", StartBit: 7, Length: 8, ByteOrder: catalog.BigEndian, Scale: 1},
		{Name: "be_7_16", StartBit: 7, Length: 16, ByteOrder: catalog.BigEndian, Scale: 1},
		{Name: "be_12_10", StartBit: 12, Length: 10, ByteOrder: catalog.BigEndian, Scale: 1},
		{Name: "be_39_32", StartBit: 39, Length: 32, ByteOrder: catalog.BigEndian, Scale: 1},
	}
	frame := &catalog.FrameDefinition{Name: "Mixed", Length: 8, Signals: signals}

	rnd := rand.New(rand.NewSource(2))
	for range 200 {
		var data can.Data
		rnd.Read(data[:])

		values, err := Decode(frame, data[:])
		require.NoError(t, err)

		for idx, sig := range signals {
			var expected uint64
			if sig.ByteOrder == catalog.BigEndian {
				expected = data.UnsignedBitsBigEndian(uint8(sig.StartBit), uint8(sig.Length))
			} else {
				expected = data.UnsignedBitsLittleEndian(uint8(sig.StartBit), uint8(sig.Length))
			}
			require.Equal(t, float64(expected), values[idx].Value, sig.Name)
		}
	}
}

func Benchmark_Decode(b *testing.B) {
	frame := fullFrame()
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	for b.Loop() {
		if _, err := Decode(frame, data); err != nil {
			b.Fatal(err)
		}
	}
}

func Benchmark_Encode(b *testing.B) {
	frame := fullFrame()
	values := []SignalValue{{"a", 100}, {"b", -3}, {"c", 4000}, {"d", -123456}}

	for b.Loop() {
		if _, err := Encode(frame, values); err != nil {
			b.Fatal(err)
		}
	}
}
