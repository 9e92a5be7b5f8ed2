package tui

import (
	"fmt"
	"strings"
)

func (m Model) viewLoading() string {
	line := fmt.Sprintf("%s %s", m.spinner.View(), m.status)
	if m.width == 0 || m.height == 0 {
		return fmt.Sprintf("\n\n   %s\n\n", line)
	}
	return renderLoadingScreen(m.width, m.height, line)
}

func renderLoadingScreen(width, height int, status string) string {
	logo := []string{
		"  __ ___   _____ _   _ _ __   ___ ",
		" / _` \\ \\ / / __| | | | '_ \\ / __|",
		"| (_| |\\ V /\\__ \\ |_| | | | | (__ ",
		" \\__,_| \\_/ |___/\\__, |_| |_|\\___|",
		"                 |___/            ",
	}

	startRow := (height - len(logo) - 2) / 2

	var b strings.Builder
	for y := range height {
		var line string
		switch {
		case y >= startRow && y < startRow+len(logo):
			line = center(titleStyle.Render(logo[y-startRow]), len(logo[y-startRow]), width)
		case y == startRow+len(logo)+1:
			line = center(statusStyle.Render(status), len([]rune(status)), width)
		}
		b.WriteString(line)
		if y < height-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// center pads a rendered string of visible width w into width columns
func center(s string, w, width int) string {
	pad := max(width-w, 0)
	return strings.Repeat(" ", pad/2) + s
}
