package coerce

import "math"

const two32 = 1 << 32

// modulo2p32 truncates f and reduces it into [0, 2^32).
func modulo2p32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	m := math.Mod(math.Trunc(f), two32)
	if m < 0 {
		m += two32
	}
	return uint32(m)
}

// WrapInt32 converts with two's-complement wrap-around.
func WrapInt32(f float64) int32 {
	return int32(modulo2p32(f))
}

// WrapUint32 converts modulo 2^32.
func WrapUint32(f float64) uint32 {
	return modulo2p32(f)
}

// StrictInt32 accepts only integral values inside the int32 range.
func StrictInt32(f float64) (int32, bool) {
	if f >= math.MinInt32 && f <= math.MaxInt32 && f == math.Trunc(f) {
		return int32(f), true
	}
	return 0, false
}

// StrictUint32 accepts only integral values inside the uint32 range.
func StrictUint32(f float64) (uint32, bool) {
	if f >= 0 && f <= math.MaxUint32 && f == math.Trunc(f) {
		return uint32(f), true
	}
	return 0, false
}

// Float32 rounds to the nearest float32. Values beyond the float32 range
// become infinities, as in IEEE-754.
func Float32(f float64) float32 {
	return float32(f)
}

// FitsFloat32 reports whether f survives a float32 round trip unchanged.
func FitsFloat32(f float64) bool {
	if math.IsNaN(f) {
		return true
	}
	return float64(float32(f)) == f
}
