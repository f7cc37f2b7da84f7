package application

import (
	"context"
	"time"
)

// BufferSizeClass is the RTT-adaptive buffer size category a connection
// falls into. infrastructure/network/peerconn maps rttMs to one of these
// before converting it to the byte count OptimalBufferSize returns.
type BufferSizeClass int

const (
	BufferMin BufferSizeClass = iota
	BufferDefault
	BufferMax
)

// PeerConnection is one TCP channel to a peer, optionally upgraded to an
// encrypted overlay after a successful handshake.
type PeerConnection interface {
	// Read/Write go through the current overlay (plain until
	// EnableEncryption succeeds, encrypted after).
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)

	// EnableEncryption upgrades the connection to the authenticated-encryption
	// overlay keyed by sessionKey. Irreversible: once enabled it cannot be
	// downgraded.
	EnableEncryption(sessionKey []byte) error
	IsEncrypted() bool

	// IsHealthy runs a non-blocking socket-liveness probe.
	IsHealthy() bool

	// OptimalBufferSize maps the last measured RTT to a buffer size.
	OptimalBufferSize() int

	// Lock/Unlock implement the connection's exclusive per-connection
	// lease. TryLock reports whether the lease was acquired without
	// blocking.
	TryLock() bool
	Lock(ctx context.Context) error
	Unlock()

	LastActivity() time.Time
	RTTMillis() int32
	SetRTTMillis(ms int32)

	Close() error
}
