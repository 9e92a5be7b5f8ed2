//go:build !linux

package output

import "os"

const shmDir = "/dev/shm"

// ShmSupported is only implemented on linux
func ShmSupported(in, out *os.File) bool {
	return false
}
