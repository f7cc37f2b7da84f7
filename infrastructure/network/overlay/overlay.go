package overlay

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
)

// maxFrameLength bounds a single overlay record, matching the style of the
// teacher's u16-prefixed tcp_adapter.go framing, widened to a u32 prefix so
// a single record can carry a large file-sync chunk.
const maxFrameLength = math.MaxUint32 >> 8 // 16 MiB ceiling, plenty for file-sync chunks

// Overlay is the logical byte pipe a PeerConnection reads/writes through:
// either Plain (pass-through framing) or Encrypted (authenticated,
// keyed by the handshake's derived session key). A PeerConnection's
// overlay starts Plain and may be upgraded to Encrypted exactly once.
type Overlay interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// Plain is a length-prefixed pass-through over the underlying net.Conn: no
// confidentiality, used before a handshake completes.
type Plain struct {
	conn net.Conn
}

func NewPlain(conn net.Conn) *Plain {
	return &Plain{conn: conn}
}

func (p *Plain) Write(data []byte) (int, error) {
	if len(data) > maxFrameLength {
		return 0, fmt.Errorf("overlay: frame too large: %d bytes", len(data))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := p.conn.Write(hdr[:]); err != nil {
		return 0, fmt.Errorf("overlay: write length prefix: %w", err)
	}
	if _, err := p.conn.Write(data); err != nil {
		return 0, fmt.Errorf("overlay: write frame: %w", err)
	}
	return len(data), nil
}

func (p *Plain) Read(buf []byte) (int, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(p.conn, hdr[:]); err != nil {
		return 0, fmt.Errorf("overlay: read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if int(n) > len(buf) {
		return 0, io.ErrShortBuffer
	}
	if _, err := io.ReadFull(p.conn, buf[:n]); err != nil {
		return 0, fmt.Errorf("overlay: read frame: %w", err)
	}
	return int(n), nil
}
