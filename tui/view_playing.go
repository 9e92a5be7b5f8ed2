package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Rows kept free under the picture for the status, stats and help lines
const ReservedRows = 4

func (m Model) viewPlaying() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	bottom := []string{m.statusLine()}
	if m.showStats {
		bottom = append(bottom, statsStyle.Render(m.statsLine()))
	}
	bottom = append(bottom, m.help.View(m.keys))
	block := lipgloss.JoinVertical(lipgloss.Left, bottom...)

	// The picture is drawn by the renderer, the status block sits at the bottom
	top := max(m.height-lipgloss.Height(block), 0)
	return strings.Repeat("\n", top) + block
}

func (m Model) statusLine() string {
	icon := "▶"
	if m.paused {
		icon = "❚❚"
	}
	parts := []string{
		icon,
		formatMs(m.position) + " / " + formatMs(m.duration),
		fmt.Sprintf("vol %d%%", int(m.volume*100+0.5)),
	}
	if m.muted {
		parts = append(parts, "muted")
	}
	if m.rate != 1 {
		parts = append(parts, fmt.Sprintf("%gx", m.rate))
	}
	line := statusStyle.Render(strings.Join(parts, "  "))
	if m.recording {
		line += "  " + recordStyle.Render("● REC")
	}
	if m.buffering {
		line += "  " + m.bar.View() + statusStyle.Render(fmt.Sprintf(" %d%%", m.percent))
	}
	if m.status != "" {
		line += "  " + statusStyle.Render(m.status)
	}
	return line
}

func (m Model) statsLine() string {
	st := m.stats
	return fmt.Sprintf("fps %.1f/%.1f  av %+.3fs  drops %d/%d  v %dms a %dms  %s",
		st.VideoDecodeFPS, st.VideoOutputFPS, st.AVDiff,
		st.FrameDropsEarly, st.FrameDropsLate,
		st.Video.DurationMs, st.Audio.DurationMs, formatBitRate(st.BitRate))
}

// formatMs formats a position as m:ss or h:mm:ss
func formatMs(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	s := ms / 1000
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// formatBitRate formats bits per second with K/M suffixes
func formatBitRate(bps int64) string {
	if bps >= 1000000 {
		return fmt.Sprintf("%.1fMb/s", float64(bps)/1000000)
	}
	if bps >= 1000 {
		return fmt.Sprintf("%.1fKb/s", float64(bps)/1000)
	}
	return fmt.Sprintf("%db/s", bps)
}
