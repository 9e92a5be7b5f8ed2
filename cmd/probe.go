package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/njyeung/avsync/ffmpeg"
	"github.com/njyeung/avsync/media"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntP("jobs", "j", 4, "Inputs opened at the same time")
	probeCmd.Flags().Bool("resolve", false, "Load web pages in a headless browser to find the media they play")
}

var probeCmd = &cobra.Command{
	Use:   "probe <uri>...",
	Short: "Print the streams of one or more inputs",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs := max(lo.Must(cmd.Flags().GetInt("jobs")), 1)
		resolving := lo.Must(cmd.Flags().GetBool("resolve"))

		infos := make([]media.SourceInfo, len(args))
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(jobs)
		for i, uri := range args {
			g.Go(func() error {
				info, err := probe(ctx, uri, resolving)
				if err != nil {
					return fmt.Errorf("%s: %w", uri, err)
				}
				infos[i] = info
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, uri := range args {
			cmd.Print(describe(uri, infos[i]))
		}
		return nil
	},
}

func probe(ctx context.Context, uri string, resolving bool) (media.SourceInfo, error) {
	uri, err := resolveURI(ctx, uri, resolving)
	if err != nil {
		return media.SourceInfo{}, err
	}
	s, err := ffmpeg.Open(ctx, uri, nil)
	if err != nil {
		return media.SourceInfo{}, err
	}
	defer s.Close()
	return s.Info(), nil
}

// describe formats the streams of an input, one per line
func describe(uri string, info media.SourceInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", uri, info.FormatName)
	if info.Duration != media.NoPTS && info.Duration > 0 {
		fmt.Fprintf(&b, ", %s", (time.Duration(info.Duration) * time.Microsecond).Round(time.Millisecond))
	}
	if info.BitRate > 0 {
		fmt.Fprintf(&b, ", %d kb/s", info.BitRate/1000)
	}
	b.WriteString("\n")

	for _, s := range info.Streams {
		fmt.Fprintf(&b, "  #%d %s %s", s.Index, s.Kind, s.CodecName)
		switch s.Kind {
		case media.KindVideo:
			fmt.Fprintf(&b, " %dx%d", s.Width, s.Height)
			if s.FrameRate.Num > 0 && s.FrameRate.Den > 0 {
				fmt.Fprintf(&b, " %.3g fps", s.FrameRate.Float())
			}
			if s.AttachedPic != nil {
				b.WriteString(" (attached picture)")
			}
		case media.KindAudio:
			fmt.Fprintf(&b, " %d Hz %d ch", s.SampleRate, s.Channels)
		}
		fmt.Fprintf(&b, " tb=%s\n", s.TimeBase)
	}
	return b.String()
}
