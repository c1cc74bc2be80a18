package codec

import "github.com/squadracorsepolito/acmeview/catalog"

// bitWeight returns the weight in the raw value of the i-th bit
// visited by the walk of the signal.
func bitWeight(sig *catalog.SignalDefinition, i int) int {
	if sig.ByteOrder == catalog.LittleEndian {
		return i
	}
	return sig.Length - 1 - i
}

func extractRaw(sig *catalog.SignalDefinition, data []byte) uint64 {
	var raw uint64

	pos := sig.StartBit
	for i := range sig.Length {
		if data[pos/8]>>(pos%8)&1 == 1 {
			raw |= 1 << bitWeight(sig, i)
		}
		pos = sig.NextBit(pos)
	}

	return raw
}

func insertRaw(sig *catalog.SignalDefinition, data []byte, raw uint64) {
	pos := sig.StartBit
	for i := range sig.Length {
		mask := byte(1) << (pos % 8)
		if raw>>bitWeight(sig, i)&1 == 1 {
			data[pos/8] |= mask
		} else {
			data[pos/8] &^= mask
		}
		pos = sig.NextBit(pos)
	}
}
