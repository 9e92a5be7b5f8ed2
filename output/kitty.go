// Package output implements terminal video and speaker audio sinks for the player
package output

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/njyeung/avsync/media"
)

const kittyChunkSize = 4096

// Kitty presents pictures through the kitty graphics protocol
type Kitty struct {
	mu sync.Mutex

	out     io.Writer
	imageID int
	shm     bool
	shmSeq  int

	width   int
	height  int
	format  media.PixelFormat
	pix     []byte
	text    []string
	drawn   bool
	caption int

	// Cell position for placement (1-indexed row/col)
	cellRow int
	cellCol int

	term TerminalSize
}

// NewKitty creates a renderer writing escape sequences to out
func NewKitty(out io.Writer) *Kitty {
	return &Kitty{out: out, imageID: 1}
}

// SetOutput changes the output writer
func (r *Kitty) SetOutput(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = w
}

// SetShm switches the pixel transport to /dev/shm files
func (r *Kitty) SetShm(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shm = on
}

// SetTerminalSize sets the terminal dimensions and recenters the picture
func (r *Kitty) SetTerminalSize(ts TerminalSize) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.term = ts
	r.center()
}

// center places the picture in the middle of the terminal
func (r *Kitty) center() {
	cols, rows, ok := r.term.Cells(r.width, r.height)
	if !ok {
		r.cellRow, r.cellCol = 0, 0
		return
	}
	r.cellCol = max((r.term.Cols-cols)/2+1, 1)
	r.cellRow = max((r.term.Rows-rows)/2+1, 1)
}

// Negotiate implements media.Renderer
func (r *Kitty) Negotiate(width, height int, format media.PixelFormat) error {
	if format != media.PixelFormatRGB24 && format != media.PixelFormatRGBA {
		return fmt.Errorf("kitty: pixel format %d: %w", format, media.ErrUnsupported)
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("kitty: invalid geometry %dx%d", width, height)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height, r.format = width, height, format
	r.center()
	return nil
}

// Upload implements media.Renderer
func (r *Kitty) Upload(f *media.Frame, sub *media.Subtitle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.Width != r.width || f.Height != r.height || f.Format != r.format {
		return fmt.Errorf("kitty: frame %dx%d does not match the negotiated %dx%d", f.Width, f.Height, r.width, r.height)
	}
	size := r.width * r.height * r.bytesPerPixel()
	if len(f.Pixels) < size {
		return fmt.Errorf("kitty: short frame, %d bytes instead of %d", len(f.Pixels), size)
	}
	r.pix = append(r.pix[:0], f.Pixels[:size]...)
	r.text = r.text[:0]
	if sub != nil {
		r.text = append(r.text, sub.Text...)
	}
	return nil
}

func (r *Kitty) bytesPerPixel() int {
	if r.format == media.PixelFormatRGBA {
		return 4
	}
	return 3
}

// Present implements media.Renderer
func (r *Kitty) Present() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pix) == 0 {
		return nil
	}

	// The whole picture is written at once
	var buf bytes.Buffer

	// Begin synchronized update and save cursor position
	buf.WriteString("\x1b[?2026h")
	buf.WriteString("\x1b7")

	if r.drawn {
		fmt.Fprintf(&buf, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", r.imageID)
	}
	if r.cellRow > 0 && r.cellCol > 0 {
		fmt.Fprintf(&buf, "\x1b[%d;%dH", r.cellRow, r.cellCol)
	} else {
		buf.WriteString("\x1b[H")
	}

	f := 24
	if r.format == media.PixelFormatRGBA {
		f = 32
	}
	if r.shm {
		if err := r.transmitShm(&buf, f); err != nil {
			return err
		}
	} else {
		r.transmit(&buf, f)
	}
	r.drawn = true
	r.drawCaption(&buf)

	// Restore cursor position and end synchronized update
	buf.WriteString("\x1b8")
	buf.WriteString("\x1b[?2026l")

	_, err := r.out.Write(buf.Bytes())
	return err
}

// transmit sends the pixels inline, split into base64 chunks
//
//	a=T transmit and display, f=24|32 format, s/v size, i image id, q=2 quiet
//	m=1 more chunks follow, m=0 last chunk
func (r *Kitty) transmit(buf *bytes.Buffer, f int) {
	encoded := base64.StdEncoding.EncodeToString(r.pix)
	first := true
	for len(encoded) > 0 {
		chunk := encoded
		more := 0
		if len(chunk) > kittyChunkSize {
			chunk = encoded[:kittyChunkSize]
			more = 1
		}
		encoded = encoded[len(chunk):]

		if first {
			fmt.Fprintf(buf, "\x1b_Ga=T,f=%d,s=%d,v=%d,i=%d,q=2,m=%d;%s\x1b\\",
				f, r.width, r.height, r.imageID, more, chunk)
			first = false
		} else {
			fmt.Fprintf(buf, "\x1b_Gm=%d;%s\x1b\\", more, chunk)
		}
	}
}

// transmitShm writes the pixels into a shared memory object the terminal reads and unlinks
func (r *Kitty) transmitShm(buf *bytes.Buffer, f int) error {
	r.shmSeq++
	name := fmt.Sprintf("/avsync-%d-%d", os.Getpid(), r.shmSeq)
	if err := os.WriteFile(shmDir+name, r.pix, 0600); err != nil {
		return fmt.Errorf("kitty: failed to write shm object: %w", err)
	}
	fmt.Fprintf(buf, "\x1b_Ga=T,t=s,f=%d,s=%d,v=%d,i=%d,q=2;%s\x1b\\",
		f, r.width, r.height, r.imageID, base64.StdEncoding.EncodeToString([]byte(name)))
	return nil
}

// drawCaption writes the subtitle lines under the picture, clearing the previous ones
func (r *Kitty) drawCaption(buf *bytes.Buffer) {
	cols, rows, ok := r.term.Cells(r.width, r.height)
	if !ok || r.cellRow <= 0 {
		return
	}
	top := r.cellRow + rows
	for i := range r.caption {
		if row := top + i; row <= r.term.Rows {
			fmt.Fprintf(buf, "\x1b[%d;1H\x1b[2K", row)
		}
	}
	r.caption = 0
	for i, line := range r.text {
		row := top + i
		if row > r.term.Rows {
			break
		}
		line = strings.TrimSpace(line)
		if len(line) > r.term.Cols {
			line = line[:r.term.Cols]
		}
		col := max(r.cellCol+(cols-len(line))/2, 1)
		fmt.Fprintf(buf, "\x1b[%d;%dH%s", row, col, line)
		r.caption++
	}
}

// Clear deletes the picture
func (r *Kitty) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.drawn {
		return nil
	}
	r.drawn = false
	_, err := fmt.Fprintf(r.out, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", r.imageID)
	return err
}
