package player

import (
	"testing"

	"github.com/njyeung/avsync/buffering"
	"github.com/njyeung/avsync/media"
	"github.com/stretchr/testify/require"
)

func videoPacket(s *session, pts int64, key bool) *media.Packet {
	pkt := s.pool.Get(0)
	pkt.Data = append(pkt.Data[:0], 1)
	pkt.PTS, pkt.DTS, pkt.Duration = pts, pts, 40
	pkt.Key = key
	return pkt
}

func TestSessionKeyFrameGate(t *testing.T) {
	s := openSession(t, testOptions(newFakeSource(10, false)))

	s.route(videoPacket(s, 0, false))
	require.False(t, s.keyFrameOK.Load())
	s.route(videoPacket(s, 40, true))
	require.True(t, s.keyFrameOK.Load())

	s.closeComponent(media.KindVideo)
	require.NoError(t, s.openComponent(0))
	require.False(t, s.keyFrameOK.Load())
	s.route(videoPacket(s, 80, false))
	require.False(t, s.keyFrameOK.Load())
	s.route(videoPacket(s, 120, true))
	require.True(t, s.keyFrameOK.Load())
}

func TestSessionBufferingEnds(t *testing.T) {
	s := openSession(t, testOptions(newFakeSource(10, false)))
	s.o.PacketBuffering = true

	started := capture(s.e, EventBufferingStart)
	ended := capture(s.e, EventBufferingEnd)

	s.toggleBuffering(true)
	waitFor(t, started)
	require.True(t, s.buf.Buffering())
	require.True(t, s.paused.Load())

	// nothing cached yet
	s.checkBuffering()
	require.True(t, s.buf.Buffering())

	for i := int64(0); i < 20; i++ {
		s.route(videoPacket(s, i*40, true))
	}
	s.checkBuffering()
	waitFor(t, ended)
	require.False(t, s.buf.Buffering())
	require.False(t, s.paused.Load())
	require.Equal(t, buffering.DefaultNextMarkMs, s.buf.MarkMs())
}
