package player

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/queue"
	"github.com/stretchr/testify/require"
)

func TestReaderBufferingOnSeek(t *testing.T) {
	src := newFakeSource(50, false)
	o := testOptions(src)
	o.PacketBuffering = true
	o.StartOnPrepared = false
	p := New(o)
	defer p.Close()

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	idle(t, p)

	started := events(p, EventBufferingStart)
	ended := events(p, EventBufferingEnd)
	seeked := events(p, EventSeekComplete)

	require.NoError(t, p.SeekTo(400))
	waitFor(t, started)
	require.NoError(t, waitFor(t, seeked).(SeekComplete).Err)
	waitFor(t, ended)
	idle(t, p)
}

func TestReaderBackpressure(t *testing.T) {
	src := newFakeSource(200, false)
	o := testOptions(src)
	o.StartOnPrepared = false
	o.MaxBufferSize = 10 * (1 + queue.NodeOverhead)
	p := New(o)
	defer p.Close()

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))

	var stalled int
	require.Eventually(t, func() bool {
		n := src.read()
		time.Sleep(5 * ReadWait)
		stalled = src.read()
		return n > 0 && n == stalled
	}, 5*time.Second, 10*time.Millisecond)
	require.Less(t, stalled, 30)

	require.NoError(t, p.Start())
	require.Eventually(t, func() bool {
		return src.read() > stalled
	}, time.Second, time.Millisecond)
}

func TestReaderMaxCachedDuration(t *testing.T) {
	src := newFakeSource(100, false)
	for i := range src.packets {
		src.packets[i].Key = i%5 == 0
	}
	o := testOptions(src)
	o.StartOnPrepared = false
	o.MaxCachedDuration = 200 * time.Millisecond
	p := New(o)
	defer p.Close()

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	idle(t, p)

	p.withSession(func(s *session) {
		first, last, ok := s.videoq.PTSSpan()
		require.True(t, ok)
		require.LessOrEqual(t, last-first, int64(240))
		require.Less(t, s.videoq.NbPackets(), 20)
	})
}

func TestReaderDiscontinuity(t *testing.T) {
	src := newFakeSource(10, false)
	src.packets[5].Discontinuity = true
	o := testOptions(src)
	o.StartOnPrepared = false
	p := New(o)
	defer p.Close()

	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	idle(t, p)
	p.withSession(func(s *session) {
		require.Equal(t, 2, s.videoq.Serial())
	})
}

func TestReaderPlayRange(t *testing.T) {
	src := newFakeSource(50, false)
	o := testOptions(src)
	o.Duration = 200 * time.Millisecond
	var codec atomic.Pointer[fakeCodec]
	o.Codecs = media.CodecOpenerFunc(func(s media.StreamInfo) (media.Codec, error) {
		c := &fakeCodec{info: s}
		codec.Store(c)
		return c, nil
	})
	p := New(o)
	defer p.Close()

	completed := events(p, EventCompleted)
	require.NoError(t, p.Prepare(context.Background(), "fake://video"))
	waitFor(t, completed)
	require.Equal(t, 6, codec.Load().packets())
}

func TestReaderTransportError(t *testing.T) {
	src := newFakeSource(5, false)
	src.err = &media.TransportError{Op: "read", Err: errors.New("connection reset")}
	o := testOptions(src)
	p := New(o)
	defer p.Close()

	completed := events(p, EventCompleted)
	failed := events(p, EventError)
	require.NoError(t, p.Prepare(context.Background(), "fake://stream"))

	err, ok := waitFor(t, failed).(error)
	require.True(t, ok)
	require.True(t, media.IsTransport(err))
	select {
	case <-completed:
		require.Fail(t, "completed after a transport error")
	default:
	}
}
