package handshake

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// Byte-array fields on the wire are length-prefixed with a fixed 32-bit
// little-endian count. Strings use a 16-bit big-endian length prefix
// instead: this protocol's strings (peer id, device name) are always well
// under 64KiB, and a fixed-width prefix reads and writes more simply than
// a variable-width one.
const (
	header             = "SECURE_HANDSHAKE_HEADER"
	handshakeOK        = "HANDSHAKE_OK"
	handshakeFailedPfx = "HANDSHAKE_FAILED_"
	codeInvalidSig     = "INVALID_SIGNATURE"
	codeGenericError   = "GENERIC_ERROR"
	maxStringLen       = 1<<16 - 1
	maxByteFieldLen    = 1 << 20
)

// Every field read/write below is bounded by ctx: a deadline carried on
// ctx is applied to conn for the duration of the call and lifted
// afterward, and a ctx already done is rejected before touching the
// wire at all. This mirrors the teacher's readWithContext/
// writeWithContext helpers, which wrap each blocking conn operation the
// same way so a hung peer or a cancelled caller can't block a handshake
// forever.

func checkNotDone(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func writeString(ctx context.Context, conn net.Conn, s string) error {
	if err := checkNotDone(ctx); err != nil {
		return err
	}
	if len(s) > maxStringLen {
		return fmt.Errorf("handshake: string field too large: %d bytes", len(s))
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("handshake: set write deadline: %w", err)
		}
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
	}

	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(s)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := io.WriteString(conn, s)
	return err
}

func readString(ctx context.Context, conn net.Conn) (string, error) {
	if err := checkNotDone(ctx); err != nil {
		return "", err
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return "", fmt.Errorf("handshake: set read deadline: %w", err)
		}
		defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	}

	var hdr [2]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(hdr[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeBytes(ctx context.Context, conn net.Conn, b []byte) error {
	if err := checkNotDone(ctx); err != nil {
		return err
	}
	if len(b) > maxByteFieldLen {
		return fmt.Errorf("handshake: byte field too large: %d bytes", len(b))
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("handshake: set write deadline: %w", err)
		}
		defer func() { _ = conn.SetWriteDeadline(time.Time{}) }()
	}

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(b)
	return err
}

func readBytes(ctx context.Context, conn net.Conn) ([]byte, error) {
	if err := checkNotDone(ctx); err != nil {
		return nil, err
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("handshake: set read deadline: %w", err)
		}
		defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	}

	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > maxByteFieldLen {
		return nil, fmt.Errorf("handshake: byte field exceeds limit: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func signedMessage(peerID string, ephemeralPublic []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(ephemeralPublic)
	return append([]byte(peerID), encoded...)
}
