//go:build !linux

package helpers

import "os"

// IsTerminal reports whether file is attached to a character device
func IsTerminal(file *os.File) bool {
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
