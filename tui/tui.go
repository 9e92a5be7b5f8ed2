// Package tui is the terminal front end of the play command
package tui

import (
	"context"
	"fmt"
	"io"

	"github.com/asticode/go-astikit"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/njyeung/avsync/player"
)

// Controller is the part of the player the front end drives
type Controller interface {
	On(name astikit.EventName, h astikit.EventHandler)
	Prepare(ctx context.Context, uri string) error
	Start() error
	Pause() error
	IsPaused() bool
	StepFrame() error
	SeekTo(ms int64) error
	Position() int64
	Duration() int64
	SetPlaybackRate(rate float64) error
	SetVolume(v float64)
	SetMute(muted bool)
	IsMuted() bool
	Stats() player.Stats
	StartRecord(path string) error
	StopRecord() error
	Done() <-chan struct{}
	Close() error
}

var _ Controller = (*player.Player)(nil)

// Options configures the front end
type Options struct {
	URI string

	// Resolve turns a page URL into a media URL, nil keeps URI as is
	Resolve func(ctx context.Context, uri string) (string, error)

	// RecordPath is where the record key writes, empty disables it
	RecordPath string

	Volume float64
	Rate   float64

	// Resize is told about terminal size changes
	Resize func(cols, rows int)

	Output io.Writer
	Input  io.Reader
}

// Run plays o.URI until the user quits or playback ends
func Run(ctx context.Context, c Controller, o Options) error {
	m := NewModel(ctx, c, o)
	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if o.Output != nil {
		opts = append(opts, tea.WithOutput(o.Output))
	}
	if o.Input != nil {
		opts = append(opts, tea.WithInput(o.Input))
	}

	final, err := tea.NewProgram(m, opts...).Run()
	if cerr := c.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if fm, ok := final.(Model); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
