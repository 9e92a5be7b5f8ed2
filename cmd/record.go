package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/njyeung/avsync/ffmpeg"
	"github.com/njyeung/avsync/log"
	"github.com/njyeung/avsync/media"
	"github.com/njyeung/avsync/recorder"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().Duration("duration", 0, "Stop after this much media time, 0 records until the end")
	recordCmd.Flags().Bool("resolve", false, "Load web pages in a headless browser to find the media they play")
}

var recordCmd = &cobra.Command{
	Use:   "record <uri> <output>",
	Short: "Copy the audio and video of an input into a file without decoding",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit := lo.Must(cmd.Flags().GetDuration("duration"))

		uri, err := resolveURI(ctx, args[0], lo.Must(cmd.Flags().GetBool("resolve")))
		if err != nil {
			return err
		}
		src, err := ffmpeg.Open(ctx, uri, nil)
		if err != nil {
			return err
		}
		defer src.Close()

		rec := recorder.New(recorder.Options{Opener: ffmpeg.SinkOpener{}, Logger: log.Logger()})
		rec.Track(src.Info().Streams)
		if err := rec.Start(args[1]); err != nil {
			return err
		}

		w := newWindow(src.Info(), limit)
		pkt := media.NewPacket(-1)
		for ctx.Err() == nil {
			pkt.Reset()
			if err := src.ReadPacket(pkt); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				if errors.Is(err, media.ErrAgain) {
					time.Sleep(10 * time.Millisecond)
					continue
				}
				_ = rec.Stop()
				return fmt.Errorf("failed to read packet: %w", err)
			}
			if w.done(pkt) {
				break
			}
			rec.Write(pkt)
		}

		if err := rec.Stop(); err != nil {
			return err
		}
		log.Logger().WithFields(logrus.Fields{"path": args[1], "packets": rec.Written()}).Info("record done")
		cmd.Printf("%s: %d packets\n", args[1], rec.Written())
		return nil
	},
}

// window stops a recording once any stream went past limit from its first timestamp
type window struct {
	limit time.Duration
	tbs   map[int]media.Rational
	first map[int]int64
}

func newWindow(info media.SourceInfo, limit time.Duration) *window {
	w := &window{limit: limit, tbs: make(map[int]media.Rational), first: make(map[int]int64)}
	for _, s := range info.Streams {
		w.tbs[s.Index] = s.TimeBase
	}
	return w
}

func (w *window) done(pkt *media.Packet) bool {
	if w.limit <= 0 {
		return false
	}
	tb, ok := w.tbs[pkt.StreamIndex]
	ts := pkt.PTS
	if ts == media.NoPTS {
		ts = pkt.DTS
	}
	if !ok || ts == media.NoPTS || tb.Num <= 0 || tb.Den <= 0 {
		return false
	}
	us := media.RescaleQ(ts, tb, media.TimeBaseMicro)
	first, seen := w.first[pkt.StreamIndex]
	if !seen {
		w.first[pkt.StreamIndex] = us
		return false
	}
	return time.Duration(us-first)*time.Microsecond >= w.limit
}
