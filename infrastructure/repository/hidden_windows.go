//go:build windows

package repository

import (
	"golang.org/x/sys/windows"
)

// markHidden sets the hidden file attribute on path, matching the
// teacher's PAL convention of isolating GOOS-specific syscalls behind a
// _windows.go/_other.go build-tag pair.
func markHidden(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}

	attrs, err := windows.GetFileAttributes(p)
	if err != nil {
		return err
	}

	return windows.SetFileAttributes(p, attrs|windows.FILE_ATTRIBUTE_HIDDEN)
}
