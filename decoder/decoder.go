// Package decoder runs one codec per stream: it pulls packets from a packet queue, drops
// data made stale by a flush and hands decoded frames to the caller's stage function.
package decoder

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/queue"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a decoder
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateFinished
	StateAborting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateFinished:
		return "finished"
	case StateAborting:
		return "aborting"
	default:
		return "stopped"
	}
}

// Options configures a decoder
type Options struct {
	// ReorderPTS selects the video timestamp: -1 best effort, 0 decode order dts, 1 coded pts
	ReorderPTS int

	// QueueEmpty is called whenever the decoder finds its packet queue empty
	QueueEmpty func()

	// Starved is called before blocking on an empty queue that has not reached its end.
	// When set, packets of an already finished serial are discarded
	Starved func()

	Logger logrus.FieldLogger
}

// Decoder feeds a codec from a packet queue
type Decoder struct {
	kind     media.Kind
	codec    media.Codec
	queue    *queue.PacketQueue
	strategy strategy
	o        Options
	l        logrus.FieldLogger

	pkt           *media.Packet
	packetPending bool
	pktSerial     atomic.Int64
	finished      atomic.Int64

	nextPTS    int64
	nextPTSTb  media.Rational
	startPTS   int64
	startPTSTb media.Rational

	firstFrame     atomic.Bool
	firstFrameTime atomic.Int64

	state atomic.Int32
	done  chan struct{}
	once  sync.Once
}

// New binds a codec to a packet queue
func New(kind media.Kind, codec media.Codec, q *queue.PacketQueue, o Options) *Decoder {
	l := o.Logger
	if l == nil {
		l = discardLogger()
	}
	d := &Decoder{
		kind:     kind,
		codec:    codec,
		queue:    q,
		strategy: strategyFor(kind, o.ReorderPTS),
		o:        o,
		l:        l.WithField("kind", kind.String()),
		startPTS: media.NoPTS,
		nextPTS:  media.NoPTS,
	}
	d.pktSerial.Store(-1)
	return d
}

// Kind returns the stream kind
func (d *Decoder) Kind() media.Kind {
	return d.kind
}

// Queue returns the packet queue
func (d *Decoder) Queue() *queue.PacketQueue {
	return d.queue
}

// State returns the lifecycle state
func (d *Decoder) State() State {
	return State(d.state.Load())
}

// Finished returns the serial at which the stream reached its end, 0 when it has not
func (d *Decoder) Finished() int {
	return int(d.finished.Load())
}

// PktSerial returns the serial of the packet being decoded
func (d *Decoder) PktSerial() int {
	return int(d.pktSerial.Load())
}

// SetStartPTS sets the timestamp used to extrapolate audio pts after a flush
func (d *Decoder) SetStartPTS(pts int64, tb media.Rational) {
	d.startPTS = pts
	d.startPTSTb = tb
}

// FirstFrameDecoded reports whether a frame was produced and when
func (d *Decoder) FirstFrameDecoded() (bool, time.Time) {
	if !d.firstFrame.Load() {
		return false, time.Time{}
	}
	return true, time.Unix(0, d.firstFrameTime.Load())
}

// Start starts the packet queue and runs fn in a new goroutine
func (d *Decoder) Start(fn func(d *Decoder) error) {
	d.queue.Start()
	d.done = make(chan struct{})
	d.state.Store(int32(StateRunning))

	go func() {
		defer close(d.done)
		if err := fn(d); err != nil && !errors.Is(err, media.ErrAborted) {
			d.l.WithError(err).Error("decoder stopped")
		}
	}()
}

// DecodeFrame decodes the next frame into f. It returns 1 when a frame was produced,
// 0 when the stream reached its end for the current serial and -1 on abort
func (d *Decoder) DecodeFrame(f *media.Frame) (int, error) {
	for {
		if d.queue.Serial() == d.PktSerial() {
			for {
				if d.queue.Aborted() {
					return -1, media.ErrAborted
				}

				err := d.codec.Receive(f)
				switch {
				case err == nil:
					d.strategy.fixPTS(d, f)
					if !d.firstFrame.Load() {
						d.firstFrameTime.Store(time.Now().UnixNano())
						d.firstFrame.Store(true)
					}
					return 1, nil
				case errors.Is(err, io.EOF):
					d.finished.Store(d.pktSerial.Load())
					d.state.Store(int32(StateFinished))
					d.codec.Flush()
					return 0, nil
				case errors.Is(err, media.ErrAgain):
				default:
					d.l.WithError(err).Warn("receiving frame failed")
				}
				if err != nil {
					break
				}
			}
		}

		pkt, err := d.nextPacket()
		if err != nil {
			return -1, err
		}

		if queue.IsFlush(pkt) {
			d.codec.Flush()
			d.finished.Store(0)
			d.state.Store(int32(StateRunning))
			d.nextPTS = d.startPTS
			d.nextPTSTb = d.startPTSTb
			d.l.WithField("serial", d.PktSerial()).Debug("decoder flushed")
			continue
		}

		send := pkt
		if queue.IsNull(pkt) {
			send = nil
			d.state.Store(int32(StateDraining))
		}
		if err := d.codec.Send(send); err != nil {
			if errors.Is(err, media.ErrAgain) {
				d.pkt = pkt
				d.packetPending = true
				continue
			}
			d.l.WithError(err).Warn("sending packet failed")
		}
		d.queue.Pool().Put(pkt)
	}
}

func (d *Decoder) nextPacket() (*media.Packet, error) {
	for {
		if d.queue.NbPackets() == 0 && d.o.QueueEmpty != nil {
			d.o.QueueEmpty()
		}

		var pkt *media.Packet
		if d.packetPending {
			pkt = d.pkt
			d.pkt = nil
			d.packetPending = false
		} else {
			var serial, ret int
			if pkt, serial, ret = d.get(); ret < 0 {
				return nil, media.ErrAborted
			}
			d.pktSerial.Store(int64(serial))
		}

		if d.queue.Serial() == d.PktSerial() {
			return pkt, nil
		}
		d.queue.Pool().Put(pkt)
	}
}

func (d *Decoder) get() (*media.Packet, int, int) {
	if d.o.Starved == nil {
		return d.queue.Get(true)
	}

	for {
		pkt, serial, ret := d.queue.Get(false)
		if ret < 0 {
			return nil, 0, ret
		}
		if ret == 0 {
			if d.Finished() == 0 {
				d.o.Starved()
			}
			if pkt, serial, ret = d.queue.Get(true); ret < 0 {
				return nil, 0, ret
			}
		}

		// The end of this serial was already reached
		if d.Finished() == serial && !queue.IsFlush(pkt) {
			d.queue.Pool().Put(pkt)
			continue
		}
		return pkt, serial, 1
	}
}

// Abort stops the decoding goroutine: the packet queue is aborted, frame queue waiters are
// woken, the goroutine is joined and the remaining packets are dropped
func (d *Decoder) Abort(fq *queue.FrameQueue) {
	d.state.Store(int32(StateAborting))
	d.queue.Abort()
	if fq != nil {
		fq.Signal()
	}
	if d.done != nil {
		<-d.done
	}
	d.queue.Flush()
	d.state.Store(int32(StateIdle))
}

// Destroy releases the codec
func (d *Decoder) Destroy() (err error) {
	d.once.Do(func() {
		if d.pkt != nil {
			d.queue.Pool().Put(d.pkt)
			d.pkt = nil
		}
		if cerr := d.codec.Close(); cerr != nil {
			err = fmt.Errorf("failed to close %s codec: %w", d.kind, cerr)
		}
		d.state.Store(int32(StateStopped))
	})
	return
}
