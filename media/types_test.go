package media

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRescaleQ(t *testing.T) {
	require.Equal(t, int64(1000000), RescaleQ(90000, Rational{1, 90000}, TimeBaseMicro))
	require.Equal(t, int64(-1500), RescaleQ(-135000, Rational{1, 90000}, Rational{1, 1000}))
	require.Equal(t, int64(2), RescaleQ(3, Rational{1, 2}, Rational{1, 1}))
	require.Equal(t, NoPTS, RescaleQ(NoPTS, Rational{1, 2}, Rational{1, 1}))
	require.Equal(t, int64(3600*48000), RescaleQ(3600*90000, Rational{1, 90000}, Rational{1, 48000}))
}

func TestPacket(t *testing.T) {
	p := NewPacket(2)
	p.Data = append(p.Data, 1, 2, 3)
	p.PTS = 10
	p.Key = true

	c := p.Clone()
	c.Data[0] = 9
	require.Equal(t, byte(1), p.Data[0])
	require.Equal(t, 3, c.Size())

	p.Reset()
	require.Equal(t, 0, p.Size())
	require.Equal(t, NoPTS, p.PTS)
	require.False(t, p.Key)
	require.Equal(t, -1, p.StreamIndex)
}

func TestSourceInfo(t *testing.T) {
	i := SourceInfo{Streams: []StreamInfo{
		{Index: 0, Kind: KindAudio},
		{Index: 1, Kind: KindVideo},
		{Index: 2, Kind: KindVideo},
	}}
	require.Equal(t, 1, i.BestStream(KindVideo))
	require.Equal(t, -1, i.BestStream(KindSubtitle))
	s, ok := i.Stream(2)
	require.True(t, ok)
	require.Equal(t, KindVideo, s.Kind)
}

func TestErrors(t *testing.T) {
	err := &TransportError{Op: "read", Err: io.ErrUnexpectedEOF}
	require.True(t, IsTransport(err))
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	require.False(t, IsTransport(io.EOF))
	require.Equal(t, 176400, AudioSpec{SampleRate: 44100, Channels: 2}.BytesPerSec())
}
