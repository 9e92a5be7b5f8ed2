package cmd

import (
	"os"

	"github.com/njyeung/avsync/config"
	"github.com/njyeung/avsync/ffmpeg"
	"github.com/njyeung/avsync/log"
	"github.com/njyeung/avsync/output"
	"github.com/njyeung/avsync/player"
	"github.com/njyeung/avsync/tui"
	"github.com/spf13/viper"
)

// engine wires the ffmpeg adapters and the terminal outputs into a player
type engine struct {
	player *player.Player
	kitty  *output.Kitty
}

func newEngine() (*engine, error) {
	o, err := config.PlayerOptions()
	if err != nil {
		return nil, err
	}

	kitty := output.NewKitty(os.Stdout)
	term, terr := output.GetTerminalSize(os.Stdout)
	if terr == nil {
		kitty.SetTerminalSize(term)
	}
	if viper.GetBool(config.VideoShm) && output.ShmSupported(os.Stdin, os.Stdout) {
		kitty.SetShm(true)
	}

	co := ffmpeg.CodecOptions{
		MaxWidth:    viper.GetInt(config.VideoMaxWidth),
		MaxHeight:   viper.GetInt(config.VideoMaxHeight),
		ThreadCount: viper.GetInt(config.VideoThreadCount),
	}
	if co.MaxWidth <= 0 && co.MaxHeight <= 0 && terr == nil {
		co.MaxWidth, co.MaxHeight = term.VideoBox(tui.ReservedRows)
	}

	o.Opener = ffmpeg.Opener{}
	o.Codecs = ffmpeg.NewCodecOpener(co)
	o.Renderer = kitty
	o.Recorder = ffmpeg.SinkOpener{}
	o.Logger = log.Logger()
	if !o.DisableAudio {
		o.Audio = output.NewSpeaker()
	}
	return &engine{player: player.New(o), kitty: kitty}, nil
}

// resize keeps the picture centered, the pixel size is read back from the terminal
func (e *engine) resize(cols, rows int) {
	if ts, err := output.GetTerminalSize(os.Stdout); err == nil {
		e.kitty.SetTerminalSize(ts)
		return
	}
	e.kitty.SetTerminalSize(output.TerminalSize{Cols: cols, Rows: rows})
}
