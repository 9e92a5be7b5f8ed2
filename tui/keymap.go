package tui

import "github.com/charmbracelet/bubbles/key"

type keymap struct {
	quit     key.Binding
	pause    key.Binding
	back     key.Binding
	forward  key.Binding
	volUp    key.Binding
	volDown  key.Binding
	mute     key.Binding
	step     key.Binding
	slower   key.Binding
	faster   key.Binding
	record   key.Binding
	stats    key.Binding
	showHelp key.Binding
}

func newKeymap() keymap {
	return keymap{
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		pause: key.NewBinding(
			key.WithKeys(" ", "p"),
			key.WithHelp("space", "pause"),
		),
		back: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←", "-10s"),
		),
		forward: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→", "+10s"),
		),
		volUp: key.NewBinding(
			key.WithKeys("up", "+", "="),
			key.WithHelp("↑", "volume up"),
		),
		volDown: key.NewBinding(
			key.WithKeys("down", "-"),
			key.WithHelp("↓", "volume down"),
		),
		mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		step: key.NewBinding(
			key.WithKeys("s", "."),
			key.WithHelp("s", "step"),
		),
		slower: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "slower"),
		),
		faster: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "faster"),
		),
		record: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "record"),
		),
		stats: key.NewBinding(
			key.WithKeys("i"),
			key.WithHelp("i", "stats"),
		),
		showHelp: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k keymap) ShortHelp() []key.Binding {
	return []key.Binding{k.pause, k.back, k.forward, k.mute, k.showHelp, k.quit}
}

// FullHelp implements help.KeyMap
func (k keymap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.pause, k.step, k.back, k.forward},
		{k.volUp, k.volDown, k.mute},
		{k.slower, k.faster, k.record, k.stats},
		{k.showHelp, k.quit},
	}
}
