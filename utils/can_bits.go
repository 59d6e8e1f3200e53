package utils

import "math"

// Little-endian (Intel) signal packing into a 64-bit payload.

func bitMask(bitLen int) uint64 {
	if bitLen >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << bitLen) - 1
}

func getBits(payload uint64, startBit, bitLen int) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return 0
	}
	return (payload >> startBit) & bitMask(bitLen)
}

func setBits(payload uint64, startBit, bitLen int, value uint64) uint64 {
	if bitLen <= 0 || bitLen > 64 {
		return payload
	}
	mask := bitMask(bitLen)
	payload &^= mask << startBit
	payload |= (value & mask) << startBit
	return payload
}

// unsignedToRawInt64 sign-extends a two's complement field
func unsignedToRawInt64(u uint64, bitLen int, signed bool) int64 {
	if !signed || bitLen >= 64 {
		return int64(u)
	}
	signBit := uint64(1) << (bitLen - 1)
	if u&signBit == 0 {
		return int64(u)
	}
	return int64(u | ^bitMask(bitLen))
}

func rawToUnsigned(raw int64, bitLen int) uint64 {
	return uint64(raw) & bitMask(bitLen)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// clampRaw saturates raw to the range representable in bitLen bits
func clampRaw(raw int64, bitLen int, signed bool) int64 {
	if bitLen <= 0 || bitLen > 63 {
		return raw
	}
	if !signed {
		hi := int64(bitMask(bitLen))
		if raw < 0 {
			return 0
		}
		if raw > hi {
			return hi
		}
		return raw
	}
	lo := -int64(1) << (bitLen - 1)
	hi := int64(1)<<(bitLen-1) - 1
	if raw < lo {
		return lo
	}
	if raw > hi {
		return hi
	}
	return raw
}
