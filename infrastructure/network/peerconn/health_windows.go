//go:build windows

package peerconn

import "golang.org/x/sys/windows"

var errWouldBlock = windows.WSAEWOULDBLOCK

func peek(fd uintptr) (int, error) {
	buf := make([]byte, 1)
	n, _, err := windows.Recvfrom(windows.Handle(fd), buf, windows.MSG_PEEK)
	return n, err
}
