package application

import (
	"context"
	"net"
)

// HandshakeResult is surfaced to the server-side caller on a successful
// handshake.
type HandshakeResult struct {
	PeerID     string
	PeerName   string
	IsTrusted  bool
	SessionKey []byte
}

// Handshake performs a forward-secret key agreement, client-authenticated
// by identity signature. A Handshake value keeps no per-connection state:
// the connection pool reuses one value for every connection it opens, and
// each call derives fresh ephemeral keys. ctx bounds the
// handshake's blocking reads/writes: an implementation derives a conn
// deadline from ctx and honors early cancellation, per spec.
type Handshake interface {
	ServerSideHandshake(ctx context.Context, conn net.Conn) (HandshakeResult, error)
	ClientSideHandshake(ctx context.Context, conn net.Conn, localPeerID, deviceName string) (HandshakeResult, error)
}
