//go:build linux

package output

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const shmDir = "/dev/shm"

// ShmSupported returns true if /dev/shm is available and the terminal behind in/out
// supports the kitty t=s (shared memory) transmission
//
// It reads the terminal reply, so it must run before the TUI owns the input
func ShmSupported(in, out *os.File) bool {
	info, err := os.Stat(shmDir)
	if err != nil || !info.IsDir() {
		return false
	}

	fd := int(in.Fd())
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return false
	}

	// Raw mode with a 200ms read timeout
	raw := *old
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.ISIG
	raw.Iflag &^= unix.IXON | unix.ICRNL
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 2
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return false
	}
	defer unix.IoctlSetTermios(fd, unix.TCSETS, old) //nolint: errcheck

	drain := make([]byte, 256)
	in.Read(drain) //nolint: errcheck

	name := fmt.Sprintf("/avsync-probe-%d", os.Getpid())
	if err := os.WriteFile(shmDir+name, []byte{0, 0, 0}, 0600); err != nil {
		return false
	}
	defer os.Remove(shmDir + name)

	// No q= so the terminal replies, \x1b_Gi=999;OK\x1b\\ when supported
	fmt.Fprintf(out, "\x1b_Ga=T,f=24,s=1,v=1,i=999,t=s;%s\x1b\\", base64.StdEncoding.EncodeToString([]byte(name)))
	buf := make([]byte, 256)
	n, _ := in.Read(buf)
	fmt.Fprint(out, "\x1b_Ga=d,d=i,i=999,q=2\x1b\\")

	return n > 0 && strings.Contains(string(buf[:n]), "OK")
}
