package queue

import (
	"math"
	"sync"

	"github.com/njyeung/avsync/media"
)

// Frame queue capacities per stream kind
const (
	VideoPictureQueueSize = 3
	SubPictureQueueSize   = 16
	SampleQueueSize       = 9
)

// Frame is one slot of a FrameQueue. The payload is recycled in place
type Frame struct {
	Frame    *media.Frame
	Sub      *media.Subtitle
	Serial   int
	PTS      float64 // seconds, NaN when undefined
	Duration float64 // seconds
	Pos      int64
	Width    int
	Height   int
	Format   media.PixelFormat
	SAR      media.Rational
	Uploaded bool
}

// FrameQueue is a bounded ring of decoded frames fed by one decoder and read by one consumer
type FrameQueue struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue       []Frame
	rindex      int
	windex      int
	size        int
	max         int
	keepLast    bool
	rindexShown int

	pktq *PacketQueue
}

// NewFrameQueue allocates every slot up front. Waiters are released when pktq aborts
func NewFrameQueue(pktq *PacketQueue, kind media.Kind, capacity int, keepLast bool) *FrameQueue {
	f := &FrameQueue{
		queue:    make([]Frame, capacity),
		max:      capacity,
		keepLast: keepLast,
		pktq:     pktq,
	}
	f.cond = sync.NewCond(&f.mu)
	for i := range f.queue {
		f.queue[i].Frame = media.NewFrame(kind)
		f.queue[i].PTS = math.NaN()
	}
	return f
}

// Capacity returns the number of slots
func (f *FrameQueue) Capacity() int {
	return f.max
}

// Signal wakes every waiter so it can observe an abort
func (f *FrameQueue) Signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cond.Broadcast()
}

// Peek returns the first unshown frame
func (f *FrameQueue) Peek() *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &f.queue[(f.rindex+f.rindexShown)%f.max]
}

// PeekNext returns the frame after Peek
func (f *FrameQueue) PeekNext() *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &f.queue[(f.rindex+f.rindexShown+1)%f.max]
}

// PeekLast returns the last shown frame
func (f *FrameQueue) PeekLast() *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &f.queue[f.rindex]
}

// PeekWritable waits for a free slot. It returns nil once the packet queue aborted
func (f *FrameQueue) PeekWritable() *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.size >= f.max && !f.pktq.Aborted() {
		f.cond.Wait()
	}
	if f.pktq.Aborted() {
		return nil
	}
	return &f.queue[f.windex]
}

// PeekReadable waits for an unshown frame. It returns nil once the packet queue aborted
func (f *FrameQueue) PeekReadable() *Frame {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.size-f.rindexShown <= 0 && !f.pktq.Aborted() {
		f.cond.Wait()
	}
	if f.pktq.Aborted() {
		return nil
	}
	return &f.queue[(f.rindex+f.rindexShown)%f.max]
}

// Push publishes the slot returned by PeekWritable
func (f *FrameQueue) Push() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.windex++; f.windex == f.max {
		f.windex = 0
	}
	f.size++
	f.cond.Signal()
}

// Next consumes the current frame. With keepLast the first call only marks it shown
func (f *FrameQueue) Next() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.keepLast && f.rindexShown == 0 {
		f.rindexShown = 1
		return
	}
	unref(&f.queue[f.rindex])
	if f.rindex++; f.rindex == f.max {
		f.rindex = 0
	}
	f.size--
	f.cond.Signal()
}

// NbRemaining returns the number of frames not shown yet
func (f *FrameQueue) NbRemaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size - f.rindexShown
}

// Size returns the number of occupied slots
func (f *FrameQueue) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size
}

// Shown reports whether the frame at the read index has been displayed
func (f *FrameQueue) Shown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rindexShown == 1
}

// LastPos returns the byte position of the last shown frame, -1 when it is stale
func (f *FrameQueue) LastPos() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp := &f.queue[f.rindex]
	if f.rindexShown == 1 && fp.Serial == f.pktq.Serial() {
		return fp.Pos
	}
	return -1
}

// Destroy releases every slot payload
func (f *FrameQueue) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.queue {
		unref(&f.queue[i])
	}
}

func unref(fr *Frame) {
	if fr.Frame != nil {
		fr.Frame.Reset()
	}
	fr.Sub = nil
	fr.Uploaded = false
}
