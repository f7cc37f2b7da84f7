//go:build unix

package peerconn

import "golang.org/x/sys/unix"

var errWouldBlock = unix.EAGAIN

func peek(fd uintptr) (int, error) {
	buf := make([]byte, 1)
	n, _, err := unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
	return n, err
}
