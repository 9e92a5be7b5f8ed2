package media

import "math/bits"

func mul64(a, b uint64) (hi, lo uint64) {
	return bits.Mul64(a, b)
}

func add64(a, b uint64) (sum, carry uint64) {
	return bits.Add64(a, b, 0)
}

func div128(hi, lo, d uint64) uint64 {
	if hi >= d {
		// quotient does not fit, saturate like a clamped timestamp
		return 1<<63 - 1
	}
	q, _ := bits.Div64(hi, lo, d)
	return q
}
