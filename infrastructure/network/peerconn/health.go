package peerconn

import (
	"errors"
	"net"
)

// probeHealthy reports whether conn still looks usable without blocking or
// consuming any bytes from the stream. A *net.TCPConn is peeked at the
// socket layer: data waiting to be read, or no data yet (the peek would
// block), both count as healthy; a clean EOF (zero bytes, no error) or a
// socket-level error means the peer is gone. Connections that aren't backed by a raw file descriptor (notably
// net.Pipe(), used throughout the test suite) have nothing to peek and are
// reported healthy unconditionally.
func probeHealthy(conn net.Conn) bool {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return true
	}

	raw, err := tcp.SyscallConn()
	if err != nil {
		return false
	}

	healthy := true
	ctrlErr := raw.Read(func(fd uintptr) bool {
		n, perr := peek(fd)
		switch {
		case perr != nil && isWouldBlock(perr):
			healthy = true
		case perr != nil:
			healthy = false
		case n == 0:
			healthy = false
		default:
			healthy = true
		}
		return true
	})
	if ctrlErr != nil {
		return false
	}
	return healthy
}

func isWouldBlock(err error) bool {
	return errors.Is(err, errWouldBlock)
}
