package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/njyeung/avsync/player"
)

const (
	tickInterval = 250 * time.Millisecond
	seekStep     = 10 * time.Second
	volumeStep   = 0.1
	maxVolume    = 2.0
	minRate      = 0.25
	maxRate      = 4.0
)

// Messages
type (
	resolvedMsg struct{ uri string }
	preparedMsg struct{}
	errorMsg    struct{ err error }
	doneMsg     struct{}
	tickMsg     time.Time
	playerMsg   struct {
		name    astikit.EventName
		payload any
	}
)

// State represents the app state
type state int

const (
	stateLoading state = iota
	statePlaying
	stateError
)

// Model is the Bubble Tea model
type Model struct {
	ctx    context.Context
	c      Controller
	o      Options
	keys   keymap
	events chan tea.Msg

	state   state
	width   int
	height  int
	spinner spinner.Model
	bar     progress.Model
	help    help.Model
	err     error
	status  string

	paused    bool
	muted     bool
	volume    float64
	rate      float64
	buffering bool
	percent   int
	recording bool
	showStats bool
	position  int64
	duration  int64
	stats     player.Stats
	completed bool
}

// NewModel creates the model, the player is prepared once the program starts
func NewModel(ctx context.Context, c Controller, o Options) Model {
	if o.Volume <= 0 {
		o.Volume = 1
	}
	if o.Rate <= 0 {
		o.Rate = 1
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := Model{
		ctx:     ctx,
		c:       c,
		o:       o,
		keys:    newKeymap(),
		events:  make(chan tea.Msg, 64),
		state:   stateLoading,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:    help.New(),
		status:  "Opening " + o.URI,
		volume:  o.Volume,
		rate:    o.Rate,
	}
	m.subscribe()
	return m
}

// subscribe forwards player events to the program. Events are dropped when the program
// falls behind
func (m Model) subscribe() {
	for _, name := range []astikit.EventName{
		player.EventPrepared,
		player.EventBufferingStart,
		player.EventBufferingUpdate,
		player.EventBufferingEnd,
		player.EventSeekComplete,
		player.EventCompleted,
		player.EventError,
		player.EventVideoSizeChanged,
	} {
		m.c.On(name, func(payload any) bool {
			select {
			case m.events <- playerMsg{name: name, payload: payload}:
			default:
			}
			return false
		})
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	first := m.prepare(m.o.URI)
	if m.o.Resolve != nil {
		first = m.resolve
	}
	return tea.Batch(m.spinner.Tick, first, m.listenForEvents)
}

func (m Model) resolve() tea.Msg {
	uri, err := m.o.Resolve(m.ctx, m.o.URI)
	if err != nil {
		return errorMsg{fmt.Errorf("failed to resolve %s: %w", m.o.URI, err)}
	}
	return resolvedMsg{uri}
}

func (m Model) prepare(uri string) tea.Cmd {
	return func() tea.Msg {
		if err := m.c.Prepare(m.ctx, uri); err != nil {
			return errorMsg{err}
		}
		m.c.SetVolume(m.volume)
		if m.rate != 1 {
			if err := m.c.SetPlaybackRate(m.rate); err != nil {
				return errorMsg{err}
			}
		}
		return preparedMsg{}
	}
}

func (m Model) listenForEvents() tea.Msg {
	select {
	case msg := <-m.events:
		return msg
	case <-m.ctx.Done():
		return nil
	}
}

func (m Model) waitDone() tea.Msg {
	select {
	case <-m.c.Done():
		return doneMsg{}
	case <-m.ctx.Done():
		return nil
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		if m.state == statePlaying {
			return m.updatePlaying(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(msg.Width/3, 10)
		m.help.Width = msg.Width
		if m.o.Resize != nil {
			m.o.Resize(msg.Width, msg.Height)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case resolvedMsg:
		m.status = "Opening " + msg.uri
		return m, m.prepare(msg.uri)

	case preparedMsg:
		m.state = statePlaying
		m.status = ""
		m.paused = m.c.IsPaused()
		m.duration = m.c.Duration()
		return m, tea.Batch(tick(), m.waitDone)

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		return m, nil

	case doneMsg:
		return m, tea.Quit

	case tickMsg:
		if m.state != statePlaying {
			return m, nil
		}
		m.position = m.c.Position()
		m.duration = m.c.Duration()
		m.stats = m.c.Stats()
		return m, tick()

	case playerMsg:
		cmd := m.handleEvent(msg)
		return m, tea.Batch(cmd, m.listenForEvents)
	}

	return m, nil
}

func (m *Model) handleEvent(msg playerMsg) tea.Cmd {
	switch msg.name {
	case player.EventBufferingStart:
		m.buffering = true
		m.percent = 0
		return m.bar.SetPercent(0)
	case player.EventBufferingUpdate:
		if u, ok := msg.payload.(player.BufferingUpdate); ok && m.buffering {
			m.percent = u.Percent
			return m.bar.SetPercent(float64(u.Percent) / 100)
		}
	case player.EventBufferingEnd:
		m.buffering = false
	case player.EventSeekComplete:
		if sc, ok := msg.payload.(player.SeekComplete); ok {
			m.position = sc.PositionMs
			m.status = ""
			if sc.Err != nil {
				m.status = "Seek failed: " + sc.Err.Error()
			}
		}
	case player.EventCompleted:
		m.completed = true
		m.paused = true
		m.status = "End of playback"
	case player.EventError:
		if err, ok := msg.payload.(error); ok {
			m.status = "Error: " + err.Error()
		}
	case player.EventVideoSizeChanged:
		if vs, ok := msg.payload.(player.VideoSize); ok {
			m.status = fmt.Sprintf("%dx%d", vs.Width, vs.Height)
		}
	}
	return nil
}

func (m Model) updatePlaying(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.pause):
		m.paused = !m.paused
		if m.paused {
			m.setErr(m.c.Pause())
		} else {
			if m.completed {
				m.completed = false
				m.setErr(m.c.SeekTo(0))
			}
			m.setErr(m.c.Start())
		}

	case key.Matches(msg, m.keys.step):
		m.paused = true
		m.setErr(m.c.StepFrame())

	case key.Matches(msg, m.keys.back):
		m.seek(-seekStep)

	case key.Matches(msg, m.keys.forward):
		m.seek(seekStep)

	case key.Matches(msg, m.keys.volUp):
		m.volume = min(m.volume+volumeStep, maxVolume)
		m.c.SetVolume(m.volume)

	case key.Matches(msg, m.keys.volDown):
		m.volume = max(m.volume-volumeStep, 0)
		m.c.SetVolume(m.volume)

	case key.Matches(msg, m.keys.mute):
		m.muted = !m.muted
		m.c.SetMute(m.muted)

	case key.Matches(msg, m.keys.slower):
		m.setRate(m.rate / 2)

	case key.Matches(msg, m.keys.faster):
		m.setRate(m.rate * 2)

	case key.Matches(msg, m.keys.record):
		m.toggleRecord()

	case key.Matches(msg, m.keys.stats):
		m.showStats = !m.showStats

	case key.Matches(msg, m.keys.showHelp):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *Model) seek(d time.Duration) {
	target := max(m.c.Position()+d.Milliseconds(), 0)
	if m.duration > 0 {
		target = min(target, m.duration)
	}
	m.completed = false
	m.status = "Seeking to " + formatMs(target)
	m.setErr(m.c.SeekTo(target))
}

func (m *Model) setRate(r float64) {
	r = min(max(r, minRate), maxRate)
	if err := m.c.SetPlaybackRate(r); err != nil {
		m.setErr(err)
		return
	}
	m.rate = r
}

func (m *Model) toggleRecord() {
	if m.o.RecordPath == "" {
		m.status = "Recording is disabled, set --record"
		return
	}
	if m.recording {
		m.recording = false
		if err := m.c.StopRecord(); err != nil {
			m.setErr(err)
			return
		}
		m.status = "Saved " + m.o.RecordPath
		return
	}
	if err := m.c.StartRecord(m.o.RecordPath); err != nil {
		m.setErr(err)
		return
	}
	m.recording = true
	m.status = ""
}

// setErr shows err in the status line
func (m *Model) setErr(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, player.ErrNotPrepared) {
		m.status = "Nothing is playing"
		return
	}
	m.status = "Error: " + err.Error()
}

// View renders the UI
func (m Model) View() string {
	switch m.state {
	case stateLoading:
		return m.viewLoading()
	case stateError:
		return m.viewError()
	case statePlaying:
		return m.viewPlaying()
	default:
		return ""
	}
}
