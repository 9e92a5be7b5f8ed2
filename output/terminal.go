package output

import (
	"os"

	"golang.org/x/sys/unix"
)

// TerminalSize holds the terminal dimensions in cells and pixels
type TerminalSize struct {
	Cols     int
	Rows     int
	WidthPx  int
	HeightPx int
}

// GetTerminalSize returns the dimensions of the terminal behind f
func GetTerminalSize(f *os.File) (TerminalSize, error) {
	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return TerminalSize{}, err
	}
	return TerminalSize{
		Cols:     int(ws.Col),
		Rows:     int(ws.Row),
		WidthPx:  int(ws.Xpixel),
		HeightPx: int(ws.Ypixel),
	}, nil
}

// CellSize returns the size of a cell in pixels
func (t TerminalSize) CellSize() (w, h int, ok bool) {
	if t.Cols <= 0 || t.Rows <= 0 || t.WidthPx <= 0 || t.HeightPx <= 0 {
		return 0, 0, false
	}
	w, h = t.WidthPx/t.Cols, t.HeightPx/t.Rows
	return w, h, w > 0 && h > 0
}

// Cells returns how many cells a picture of the given pixel size covers
func (t TerminalSize) Cells(widthPx, heightPx int) (cols, rows int, ok bool) {
	cw, ch, ok := t.CellSize()
	if !ok {
		return 0, 0, false
	}
	return (widthPx + cw - 1) / cw, (heightPx + ch - 1) / ch, true
}

// VideoBox returns the largest picture in pixels that fits once reserved rows are kept
// for the status and caption lines
func (t TerminalSize) VideoBox(reservedRows int) (w, h int) {
	_, ch, ok := t.CellSize()
	if !ok {
		return 0, 0
	}
	return t.WidthPx, max(t.HeightPx-reservedRows*ch, ch)
}
