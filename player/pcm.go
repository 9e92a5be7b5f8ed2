package player

import (
	"encoding/binary"
	"math"
)

// convertS16 resamples interleaved s16 audio from srcSamples to dstSamples frames with
// linear interpolation and maps srcCh channels onto dstCh. The result is appended to dst
func convertS16(dst, src []byte, srcCh, dstCh, srcSamples, dstSamples int) []byte {
	if srcSamples <= 0 || dstSamples <= 0 || srcCh <= 0 || dstCh <= 0 {
		return dst
	}
	n := dstSamples * dstCh * 2
	if cap(dst)-len(dst) < n {
		grown := make([]byte, len(dst), len(dst)+n)
		copy(grown, dst)
		dst = grown
	}
	out := dst[len(dst) : len(dst)+n]

	sample := func(i, ch int) float64 {
		i = min(max(i, 0), srcSamples-1)
		off := (i*srcCh + ch) * 2
		return float64(int16(binary.LittleEndian.Uint16(src[off:])))
	}
	mapped := func(i, ch int) float64 {
		switch {
		case dstCh == 1 && srcCh > 1:
			var sum float64
			for c := 0; c < srcCh; c++ {
				sum += sample(i, c)
			}
			return sum / float64(srcCh)
		default:
			return sample(i, ch%srcCh)
		}
	}

	step := float64(srcSamples) / float64(dstSamples)
	for i := 0; i < dstSamples; i++ {
		pos := float64(i) * step
		i0 := int(pos)
		frac := pos - float64(i0)
		for ch := 0; ch < dstCh; ch++ {
			v := mapped(i0, ch)
			if frac > 0 {
				v += (mapped(i0+1, ch) - v) * frac
			}
			binary.LittleEndian.PutUint16(out[(i*dstCh+ch)*2:], uint16(clampS16(v)))
		}
	}
	return dst[:len(dst)+n]
}

// mixVolume copies s16 samples from src to dst scaled by volume
func mixVolume(dst, src []byte, volume float64) {
	if volume == 1 {
		copy(dst, src)
		return
	}
	n := min(len(dst), len(src)) &^ 1
	for i := 0; i < n; i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(src[i:]))) * volume
		binary.LittleEndian.PutUint16(dst[i:], uint16(clampS16(v)))
	}
	if n < len(dst) {
		clear(dst[n:])
	}
}

func clampS16(v float64) int16 {
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
}
