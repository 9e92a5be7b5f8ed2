package decoder

import (
	"io"

	"github.com/njyeung/avsync/media"
	"github.com/sirupsen/logrus"
)

// strategy holds the per kind timestamp policy, picked once when the decoder is created
type strategy interface {
	fixPTS(d *Decoder, f *media.Frame)
}

func strategyFor(kind media.Kind, reorderPTS int) strategy {
	switch kind {
	case media.KindVideo:
		return videoStrategy{reorderPTS: reorderPTS}
	case media.KindAudio:
		return audioStrategy{}
	default:
		return passthroughStrategy{}
	}
}

type videoStrategy struct {
	reorderPTS int
}

func (s videoStrategy) fixPTS(_ *Decoder, f *media.Frame) {
	switch s.reorderPTS {
	case -1:
		f.PTS = f.BestEffort
	case 0:
		f.PTS = f.PktDTS
	}
}

type audioStrategy struct{}

// Audio timestamps move to a 1/sample_rate timebase and are extrapolated from the
// previous frame when missing
func (audioStrategy) fixPTS(d *Decoder, f *media.Frame) {
	if f.SampleRate <= 0 {
		return
	}
	tb := media.Rational{Num: 1, Den: f.SampleRate}
	if f.PTS != media.NoPTS {
		f.PTS = media.RescaleQ(f.PTS, f.TimeBase, tb)
	} else if d.nextPTS != media.NoPTS {
		f.PTS = media.RescaleQ(d.nextPTS, d.nextPTSTb, tb)
	}
	f.TimeBase = tb
	if f.PTS != media.NoPTS {
		d.nextPTS = f.PTS + int64(f.NbSamples)
		d.nextPTSTb = tb
	}
}

type passthroughStrategy struct{}

func (passthroughStrategy) fixPTS(*Decoder, *media.Frame) {}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
