package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/njyeung/avsync/media"
	"github.com/stretchr/testify/require"
)

func newTestPacket(pool *Pool, data string, pts, duration int64, key bool) *media.Packet {
	pkt := pool.Get(0)
	pkt.Data = append(pkt.Data, data...)
	pkt.PTS = pts
	pkt.DTS = pts
	pkt.Duration = duration
	pkt.Key = key
	return pkt
}

func TestPacketQueueAccounting(t *testing.T) {
	pool := NewPool()
	q := NewPacketQueue(pool)
	q.Start()
	require.Equal(t, 1, q.Serial())

	// Flush marker
	require.Equal(t, 1, q.NbPackets())
	require.Equal(t, NodeOverhead, q.Size())

	sizes := []string{"a", "bbbb", "cccccccc"}
	for i, s := range sizes {
		require.NoError(t, q.Put(newTestPacket(pool, s, int64(i), 10, false)))
	}
	require.Equal(t, 4, q.NbPackets())
	require.Equal(t, 4*NodeOverhead+13, q.Size())
	require.Equal(t, int64(30), q.Duration())

	pkt, serial, ret := q.Get(false)
	require.Equal(t, 1, ret)
	require.True(t, IsFlush(pkt))
	require.Equal(t, 1, serial)

	pkt, serial, ret = q.Get(false)
	require.Equal(t, 1, ret)
	require.Equal(t, 1, serial)
	require.Equal(t, []byte("a"), pkt.Data)
	nb, size, duration := q.Stats()
	require.Equal(t, 2, nb)
	require.Equal(t, 2*NodeOverhead+12, size)
	require.Equal(t, int64(20), duration)

	q.Get(false)
	q.Get(false)
	_, _, ret = q.Get(false)
	require.Equal(t, 0, ret)
	nb, size, duration = q.Stats()
	require.Zero(t, nb)
	require.Zero(t, size)
	require.Zero(t, duration)
}

func TestPacketQueueFlush(t *testing.T) {
	pool := NewPool()
	q := NewPacketQueue(pool)
	q.Start()
	q.Get(false)

	require.NoError(t, q.Put(newTestPacket(pool, "old", 1, 1, true)))
	require.NoError(t, q.Put(newTestPacket(pool, "old", 2, 1, false)))
	before := q.Serial()

	q.Flush()
	require.Equal(t, before+1, q.Serial())
	require.NoError(t, q.Put(newTestPacket(pool, "new", 3, 1, true)))

	pkt, serial, ret := q.Get(false)
	require.Equal(t, 1, ret)
	require.True(t, IsFlush(pkt))
	require.Equal(t, before+1, serial)

	pkt, serial, ret = q.Get(false)
	require.Equal(t, 1, ret)
	require.Equal(t, []byte("new"), pkt.Data)
	require.Equal(t, before+1, serial)

	_, _, ret = q.Get(false)
	require.Equal(t, 0, ret)
}

func TestPacketQueueAbort(t *testing.T) {
	pool := NewPool()
	q := NewPacketQueue(pool)
	q.Start()

	q.Abort()
	q.Abort()
	require.True(t, q.Aborted())

	_, _, ret := q.Get(true)
	require.Equal(t, -1, ret)

	pkt := newTestPacket(pool, "x", 1, 1, true)
	require.ErrorIs(t, q.Put(pkt), media.ErrAborted)
	require.Equal(t, 0, pkt.Size())

	// Flushing an aborted queue does not move the serial
	serial := q.Serial()
	q.Flush()
	require.Equal(t, serial, q.Serial())
	require.Zero(t, q.NbPackets())
}

func TestPacketQueueBlockingGet(t *testing.T) {
	pool := NewPool()
	q := NewPacketQueue(pool)
	q.Start()
	q.Get(false)

	type result struct {
		pkt *media.Packet
		ret int
	}
	done := make(chan result)
	go func() {
		pkt, _, ret := q.Get(true)
		done <- result{pkt, ret}
	}()

	select {
	case <-done:
		t.Fatal("get returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	sent := newTestPacket(pool, "payload", 5, 1, true)
	require.NoError(t, q.Put(sent))

	select {
	case r := <-done:
		require.Equal(t, 1, r.ret)
		require.Same(t, sent, r.pkt)
		require.Equal(t, []byte("payload"), r.pkt.Data)
	case <-time.After(time.Second):
		t.Fatal("get did not wake up")
	}
}

func TestPacketQueueAbortWakesWaiters(t *testing.T) {
	q := NewPacketQueue(nil)
	q.Start()
	q.Get(false)

	var wg sync.WaitGroup
	rets := make([]int, 3)
	for i := range rets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, rets[i] = q.Get(true)
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	q.Abort()
	wg.Wait()
	require.Equal(t, []int{-1, -1, -1}, rets)
}

func TestPacketQueueNull(t *testing.T) {
	q := NewPacketQueue(nil)
	q.Start()
	require.NoError(t, q.PutNull(3))
	q.Get(false)
	pkt, _, ret := q.Get(false)
	require.Equal(t, 1, ret)
	require.True(t, IsNull(pkt))
	require.False(t, IsNull(FlushMarker()))
	require.Equal(t, 3, pkt.StreamIndex)
}

func TestPacketQueueDropUntil(t *testing.T) {
	pool := NewPool()
	q := NewPacketQueue(pool)
	q.Start()
	q.Get(false)

	// Two GOPs of 3 packets, then a third key frame
	for i := int64(0); i < 7; i++ {
		require.NoError(t, q.Put(newTestPacket(pool, "p", i*10, 10, i%3 == 0)))
	}
	first, last, ok := q.PTSSpan()
	require.True(t, ok)
	require.Equal(t, int64(0), first)
	require.Equal(t, int64(60), last)

	// The key frame at 30 is the first one at or after 25
	require.Equal(t, 3, q.DropUntil(25))
	pkt, _, _ := q.Get(false)
	require.True(t, pkt.Key)
	require.Equal(t, int64(30), pkt.PTS)

	// Cutoff after the last key frame empties nothing past a flush marker
	require.NoError(t, q.PutFlush())
	require.NoError(t, q.Put(newTestPacket(pool, "p", 100, 10, false)))
	require.Equal(t, 3, q.DropUntil(1000))
	pkt, _, _ = q.Get(false)
	require.True(t, IsFlush(pkt))
	require.Equal(t, 1, q.NbPackets())
}

func TestPoolRecycles(t *testing.T) {
	pool := NewPool()
	q := NewPacketQueue(pool)
	q.Start()
	q.Get(false)
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Put(newTestPacket(pool, "x", int64(i), 1, true)))
		pkt, _, _ := q.Get(false)
		pool.Put(pkt)
	}
	s := pool.Stats()
	require.LessOrEqual(t, s.AllocatedNodes, uint64(2))
	require.LessOrEqual(t, s.AllocatedPackets, uint64(2))

	src := newTestPacket(pool, "copy", 42, 1, true)
	c := pool.Copy(src)
	require.NotSame(t, src, c)
	require.Equal(t, src.Data, c.Data)
	require.Equal(t, int64(42), c.PTS)
}
