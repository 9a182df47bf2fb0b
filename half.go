package panodecode

import "math"

// FloatToHalf converts a float32 to IEEE 754 binary16 bits, rounding to nearest even.
func FloatToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23) & 0xFF
	mant := bits & 0x007FFFFF

	if exp == 0xFF {
		if mant == 0 {
			return sign | 0x7C00
		}
		m := uint16(mant >> 13)
		if m == 0 {
			// Payload lived in the dropped bits; keep it a NaN.
			m = 0x0200
		}
		return sign | 0x7C00 | m
	}

	e := exp - 127 + 15
	if e >= 0x1F {
		return sign | 0x7C00
	}

	if e <= 0 {
		if e < -10 {
			return sign
		}
		full := mant | 0x00800000
		shift := uint32(14 - e)
		m := full >> shift
		rem := full & (1<<shift - 1)
		halfway := uint32(1) << (shift - 1)
		if rem > halfway || (rem == halfway && m&1 == 1) {
			m++
		}
		// m == 0x400 carries into the smallest normal, which is the right encoding.
		return sign | uint16(m)
	}

	h := sign | uint16(e)<<10 | uint16(mant>>13)
	rem := mant & 0x1FFF
	if rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
		// Mantissa overflow carries into the exponent; 0x7BFF rounds up to Inf.
		h++
	}
	return h
}

// HalfToFloat converts IEEE 754 binary16 bits to a float32. The conversion is exact.
func HalfToFloat(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := int32(h>>10) & 0x1F
	mant := uint32(h & 0x03FF)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign << 31)
		}
		for mant&0x0400 == 0 {
			mant <<= 1
			exp--
		}
		exp++
		mant &= 0x03FF
	case 0x1F:
		return math.Float32frombits(sign<<31 | 0x7F800000 | mant<<13)
	}

	exp += 127 - 15
	return math.Float32frombits(sign<<31 | uint32(exp)<<23 | mant<<13)
}

// PackHalf converts linear float32 values to binary16.
func PackHalf(src []float32) []uint16 {
	dst := make([]uint16, len(src))
	packHalfInto(dst, src)
	return dst
}

func packHalfInto(dst []uint16, src []float32) {
	for i, v := range src {
		dst[i] = FloatToHalf(v)
	}
}
