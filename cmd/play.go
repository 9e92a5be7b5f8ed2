package cmd

import (
	"context"
	"time"

	"github.com/njyeung/avsync/config"
	"github.com/njyeung/avsync/log"
	"github.com/njyeung/avsync/resolve"
	"github.com/njyeung/avsync/tui"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().Bool("resolve", false, "Load web pages in a headless browser to find the media they play")
	playCmd.Flags().String("record", "", "File the record key writes to")

	bind := func(name, key string) {
		lo.Must0(viper.BindPFlag(key, playCmd.Flags().Lookup(name)))
	}
	playCmd.Flags().String("sync", "audio", "Master clock: audio, video or ext")
	lo.Must0(playCmd.RegisterFlagCompletionFunc("sync", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"audio", "video", "ext"}, cobra.ShellCompDirectiveDefault
	}))
	bind("sync", config.PlayerSync)
	playCmd.Flags().Int("loop", 1, "Number of plays, 0 loops forever")
	bind("loop", config.PlayerLoop)
	playCmd.Flags().Bool("autoexit", false, "Exit when playback completes")
	bind("autoexit", config.PlayerAutoExit)
	playCmd.Flags().Int64("start", 0, "Play range start in ms")
	bind("start", config.PlayerStartTimeMs)
	playCmd.Flags().Int64("duration", 0, "Play range duration in ms")
	bind("duration", config.PlayerDurationMs)
	playCmd.Flags().Int64("seek", 0, "Initial seek in ms")
	bind("seek", config.PlayerSeekAtStartMs)
	playCmd.Flags().Float64("volume", 1, "Volume, 1 is unchanged")
	bind("volume", config.PlayerVolume)
	playCmd.Flags().Float64("rate", 1, "Playback rate")
	bind("rate", config.PlayerRate)
	playCmd.Flags().Bool("no-audio", false, "Disable audio")
	bind("no-audio", config.PlayerDisableAudio)
	playCmd.Flags().Bool("no-video", false, "Disable video")
	bind("no-video", config.PlayerDisableVideo)
	playCmd.Flags().Bool("no-subs", false, "Disable subtitles")
	bind("no-subs", config.PlayerDisableSubtitle)
}

var playCmd = &cobra.Command{
	Use:   "play <uri>",
	Short: "Play a file, a stream or a web page in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}

		o := tui.Options{
			URI:        args[0],
			RecordPath: lo.Must(cmd.Flags().GetString("record")),
			Volume:     viper.GetFloat64(config.PlayerVolume),
			Rate:       viper.GetFloat64(config.PlayerRate),
			Resize:     e.resize,
		}
		if lo.Must(cmd.Flags().GetBool("resolve")) && resolve.NeedsResolve(args[0]) {
			b := newBrowser()
			o.Resolve = b.Resolve
		}
		return tui.Run(cmd.Context(), e.player, o)
	},
}

func newBrowser() *resolve.Browser {
	return resolve.New(resolve.Options{
		UserDataDir: viper.GetString(config.ResolveUserDataDir),
		Headless:    viper.GetBool(config.ResolveHeadless),
		Wait:        time.Duration(viper.GetInt64(config.ResolveWaitMs)) * time.Millisecond,
		Logger:      log.Logger(),
	})
}

// resolveURI returns uri, or the media it plays when it is a web page and resolving is on
func resolveURI(ctx context.Context, uri string, enabled bool) (string, error) {
	if !enabled || !resolve.NeedsResolve(uri) {
		return uri, nil
	}
	return newBrowser().Resolve(ctx, uri)
}
