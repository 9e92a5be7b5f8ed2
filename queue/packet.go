package queue

import (
	"sync"
	"unsafe"

	"github.com/njyeung/avsync/media"
)

// NodeOverhead is the bookkeeping cost added to Size for every queued packet
var NodeOverhead = int(unsafe.Sizeof(node{}))

var flushMarker = &media.Packet{StreamIndex: -1, PTS: media.NoPTS, DTS: media.NoPTS, Pos: -1}

// FlushMarker returns the distinguished packet announcing a discontinuity
func FlushMarker() *media.Packet {
	return flushMarker
}

// IsFlush reports whether pkt is the flush marker
func IsFlush(pkt *media.Packet) bool {
	return pkt == flushMarker
}

// IsNull reports whether pkt is an end of stream marker
func IsNull(pkt *media.Packet) bool {
	return pkt != flushMarker && len(pkt.Data) == 0
}

// PacketQueue is a FIFO of compressed packets tagged with the serial current at enqueue time
type PacketQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	first, last *node
	nbPackets   int
	size        int
	duration    int64
	lastPTS     int64
	abort       bool
	serial      int

	pool *Pool
}

// NewPacketQueue creates an aborted queue, Start must be called before use
func NewPacketQueue(pool *Pool) *PacketQueue {
	if pool == nil {
		pool = NewPool()
	}
	q := &PacketQueue{
		abort:   true,
		pool:    pool,
		lastPTS: media.NoPTS,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Pool returns the pool packets are recycled to
func (q *PacketQueue) Pool() *Pool {
	return q.pool
}

// Start clears the abort latch and enqueues a flush marker so the serial moves forward
func (q *PacketQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.abort = false
	q.put(flushMarker)
}

func (q *PacketQueue) put(pkt *media.Packet) error {
	if q.abort {
		return media.ErrAborted
	}

	n := q.pool.node()
	n.pkt = pkt
	if pkt == flushMarker {
		q.serial++
	}
	n.serial = q.serial

	if q.last == nil {
		q.first = n
	} else {
		q.last.next = n
	}
	q.last = n
	q.nbPackets++
	q.size += pkt.Size() + NodeOverhead
	q.duration += pkt.Duration
	if pkt != flushMarker && pkt.PTS != media.NoPTS {
		q.lastPTS = pkt.PTS
	}

	q.cond.Signal()
	return nil
}

// Put enqueues a packet. On an aborted queue the packet is released and ErrAborted returned
func (q *PacketQueue) Put(pkt *media.Packet) error {
	q.mu.Lock()
	err := q.put(pkt)
	q.mu.Unlock()

	if err != nil {
		q.pool.Put(pkt)
	}
	return err
}

// PutFlush enqueues the flush marker, incrementing the serial
func (q *PacketQueue) PutFlush() error {
	return q.Put(flushMarker)
}

// PutNull enqueues an end of stream marker for the stream
func (q *PacketQueue) PutNull(streamIndex int) error {
	return q.Put(q.pool.Get(streamIndex))
}

// Get dequeues the next packet. It returns -1 once aborted, 0 when non blocking and empty
// and 1 on success, along with the packet serial
func (q *PacketQueue) Get(block bool) (*media.Packet, int, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.abort {
			return nil, 0, -1
		}

		if n := q.first; n != nil {
			q.first = n.next
			if q.first == nil {
				q.last = nil
			}
			q.nbPackets--
			q.size -= n.pkt.Size() + NodeOverhead
			q.duration -= n.pkt.Duration
			if q.first == nil {
				q.lastPTS = media.NoPTS
			}

			pkt, serial := n.pkt, n.serial
			q.pool.putNode(n)
			return pkt, serial, 1
		}

		if !block {
			return nil, 0, 0
		}
		q.cond.Wait()
	}
}

func (q *PacketQueue) drain() {
	for n := q.first; n != nil; {
		next := n.next
		q.pool.Put(n.pkt)
		q.pool.putNode(n)
		n = next
	}
	q.first, q.last = nil, nil
	q.nbPackets = 0
	q.size = 0
	q.duration = 0
	q.lastPTS = media.NoPTS
}

// Flush drops every queued packet. Unless the queue is aborted it then enqueues a flush
// marker, so nothing queued before the flush can be mistaken for current data
func (q *PacketQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.drain()
	q.put(flushMarker) //nolint: errcheck
}

// Abort latches the queue into the aborted state and wakes every waiter
func (q *PacketQueue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.abort = true
	q.cond.Broadcast()
}

// Destroy releases every queued packet
func (q *PacketQueue) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.drain()
}

// Aborted reports whether Abort was called since the last Start
func (q *PacketQueue) Aborted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.abort
}

// Serial returns the current serial
func (q *PacketQueue) Serial() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.serial
}

// Size returns the queued bytes, node overhead included
func (q *PacketQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Duration returns the sum of queued packet durations in the stream timebase
func (q *PacketQueue) Duration() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.duration
}

// NbPackets returns the number of queued nodes, markers included
func (q *PacketQueue) NbPackets() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nbPackets
}

// Stats returns packets, bytes and duration in one critical section
func (q *PacketQueue) Stats() (nbPackets, size int, duration int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nbPackets, q.size, q.duration
}

// PTSSpan returns the pts of the oldest and newest queued packets with a valid pts
func (q *PacketQueue) PTSSpan() (first, last int64, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.lastPTS == media.NoPTS {
		return 0, 0, false
	}
	for n := q.first; n != nil; n = n.next {
		if n.pkt != flushMarker && n.pkt.PTS != media.NoPTS {
			return n.pkt.PTS, q.lastPTS, true
		}
	}
	return 0, 0, false
}

// DropUntil removes packets from the head until it reaches a key frame whose pts is at or
// after pts. It never drops a flush or end of stream marker. It returns the dropped count
func (q *PacketQueue) DropUntil(pts int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	for n := q.first; n != nil; n = q.first {
		pkt := n.pkt
		if pkt == flushMarker || len(pkt.Data) == 0 {
			break
		}
		if pkt.Key && pkt.PTS != media.NoPTS && pkt.PTS >= pts {
			break
		}

		q.first = n.next
		if q.first == nil {
			q.last = nil
			q.lastPTS = media.NoPTS
		}
		q.nbPackets--
		q.size -= pkt.Size() + NodeOverhead
		q.duration -= pkt.Duration
		q.pool.Put(pkt)
		q.pool.putNode(n)
		dropped++
	}
	return dropped
}
