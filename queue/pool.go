// Package queue implements the packet and frame queues that connect the reader, the
// decoders and the presentation loop.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/njyeung/avsync/media"
)

// Pool recycles packets and queue nodes so steady-state playback does not allocate
type Pool struct {
	cs *PoolStats
	mn sync.Mutex // Locks ns
	ns []*node
	mp sync.Mutex // Locks ps
	ps []*media.Packet
}

// PoolStats counts allocations made by a pool
type PoolStats struct {
	AllocatedNodes   uint64
	AllocatedPackets uint64
}

type node struct {
	pkt    *media.Packet
	serial int
	next   *node
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{cs: &PoolStats{}}
}

// Get returns a reset packet for the given stream
func (p *Pool) Get(streamIndex int) (pkt *media.Packet) {
	p.mp.Lock()
	if n := len(p.ps); n > 0 {
		pkt = p.ps[n-1]
		p.ps = p.ps[:n-1]
	}
	p.mp.Unlock()

	if pkt == nil {
		pkt = media.NewPacket(streamIndex)
		atomic.AddUint64(&p.cs.AllocatedPackets, 1)
		return
	}
	pkt.StreamIndex = streamIndex
	return
}

// Copy returns a pooled deep copy of src
func (p *Pool) Copy(src *media.Packet) *media.Packet {
	pkt := p.Get(src.StreamIndex)
	data := append(pkt.Data[:0], src.Data...)
	*pkt = *src
	pkt.Data = data
	return pkt
}

// Put gives a packet back to the pool. Flush markers are never recycled
func (p *Pool) Put(pkt *media.Packet) {
	if pkt == nil || IsFlush(pkt) {
		return
	}
	pkt.Reset()

	p.mp.Lock()
	defer p.mp.Unlock()
	p.ps = append(p.ps, pkt)
}

// Stats returns a snapshot of the allocation counters
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		AllocatedNodes:   atomic.LoadUint64(&p.cs.AllocatedNodes),
		AllocatedPackets: atomic.LoadUint64(&p.cs.AllocatedPackets),
	}
}

func (p *Pool) node() (n *node) {
	p.mn.Lock()
	defer p.mn.Unlock()

	if l := len(p.ns); l > 0 {
		n = p.ns[l-1]
		p.ns = p.ns[:l-1]
		return
	}
	atomic.AddUint64(&p.cs.AllocatedNodes, 1)
	return &node{}
}

func (p *Pool) putNode(n *node) {
	*n = node{}

	p.mn.Lock()
	defer p.mn.Unlock()
	p.ns = append(p.ns, n)
}
