//go:build linux

package helpers

import (
	"os"

	"golang.org/x/sys/unix"
)

// IsTerminal reports whether file is attached to a terminal
func IsTerminal(file *os.File) bool {
	_, err := unix.IoctlGetTermios(int(file.Fd()), unix.TCGETS)
	return err == nil
}
