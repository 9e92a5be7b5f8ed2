package player

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/njyeung/avsync/queue"
	"github.com/stretchr/testify/require"
)

func s16(vs ...int16) []byte {
	b := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}

func fromS16(b []byte) []int16 {
	vs := make([]int16, len(b)/2)
	for i := range vs {
		vs[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return vs
}

func TestAudioDrift(t *testing.T) {
	d := newAudioDrift(0.05)

	// Averaging first
	for i := 0; i < audioDiffAvgNB; i++ {
		require.Equal(t, 1000, d.wanted(1000, 8000, 0.1))
	}
	// Audio is ahead: more samples, bounded
	require.Equal(t, 1100, d.wanted(1000, 8000, 0.1))
	require.Equal(t, 1040, d.wanted(1000, 8000, 0.005))

	// Out of sync: the average restarts
	require.Equal(t, 1000, d.wanted(1000, 8000, 20))
	require.Equal(t, 0, d.count)
	require.Equal(t, 1000, d.wanted(1000, 8000, math.NaN()))

	// Behind: fewer samples
	d = newAudioDrift(0.05)
	for i := 0; i <= audioDiffAvgNB; i++ {
		d.wanted(1000, 8000, -0.2)
	}
	require.Equal(t, 900, d.wanted(1000, 8000, -0.2))

	// Below the threshold nothing changes
	d = newAudioDrift(0.05)
	for i := 0; i <= audioDiffAvgNB; i++ {
		require.Equal(t, 1000, d.wanted(1000, 8000, 0.01))
	}
}

func TestConvertS16(t *testing.T) {
	// Same layout and length is a copy
	require.Equal(t, []int16{1, 2, 3, 4}, fromS16(convertS16(nil, s16(1, 2, 3, 4), 2, 2, 2, 2)))

	// Mono to stereo duplicates
	require.Equal(t, []int16{5, 5, -7, -7}, fromS16(convertS16(nil, s16(5, -7), 1, 2, 2, 2)))

	// Stereo to mono averages
	require.Equal(t, []int16{15, -2}, fromS16(convertS16(nil, s16(10, 20, -4, 0), 2, 1, 2, 2)))

	// Upsampling interpolates
	require.Equal(t, []int16{0, 50, 100, 100}, fromS16(convertS16(nil, s16(0, 100), 1, 1, 2, 4)))

	// Downsampling picks every other sample
	require.Equal(t, []int16{0, 20}, fromS16(convertS16(nil, s16(0, 10, 20, 30), 1, 1, 4, 2)))

	// Appends to dst
	out := convertS16(s16(9), s16(1), 1, 1, 1, 1)
	require.Equal(t, []int16{9, 1}, fromS16(out))

	require.Empty(t, convertS16(nil, s16(1), 1, 1, 0, 1))
}

func TestMixVolume(t *testing.T) {
	src := s16(100, -100, 30000, -30000)
	dst := make([]byte, len(src))

	mixVolume(dst, src, 1)
	require.Equal(t, src, dst)

	mixVolume(dst, src, 0.5)
	require.Equal(t, []int16{50, -50, 15000, -15000}, fromS16(dst))

	mixVolume(dst, src, 2)
	require.Equal(t, []int16{200, -200, math.MaxInt16, math.MinInt16}, fromS16(dst))

	mixVolume(dst, src, 0)
	require.Equal(t, []int16{0, 0, 0, 0}, fromS16(dst))
}

func TestLog2(t *testing.T) {
	require.Equal(t, 0, log2(0))
	require.Equal(t, 0, log2(1))
	require.Equal(t, 8, log2(266))
	require.Equal(t, 10, log2(1024))
}

func TestSpeedSampler(t *testing.T) {
	var s speedSampler
	require.Equal(t, 0.0, s.rate())
	s.add(1)
	require.Equal(t, 0.0, s.rate())
	for i := 1; i <= 20; i++ {
		s.add(1 + float64(i)*0.04)
	}
	require.InDelta(t, 25, s.rate(), 1e-6)
}

func TestIsRealtime(t *testing.T) {
	require.True(t, isRealtime("rtsp", "rtsp://host/stream"))
	require.True(t, isRealtime("mpegts", "udp://239.0.0.1:1234"))
	require.True(t, isRealtime("sdp", "file.sdp"))
	require.False(t, isRealtime("mov,mp4,m4a,3gp,3g2,mj2", "movie.mp4"))
}

func TestVPDuration(t *testing.T) {
	s := &session{maxFrameDuration: 10}
	a := &queue.Frame{Serial: 1, PTS: 1, Duration: 0.04}
	b := &queue.Frame{Serial: 1, PTS: 1.5}
	require.Equal(t, 0.5, s.vpDuration(a, b))

	b.PTS = 0.5
	require.Equal(t, 0.04, s.vpDuration(a, b))

	b.PTS = 20
	require.Equal(t, 0.04, s.vpDuration(a, b))

	b.PTS = math.NaN()
	require.Equal(t, 0.04, s.vpDuration(a, b))

	b.Serial = 2
	require.Equal(t, 0.0, s.vpDuration(a, b))
}
