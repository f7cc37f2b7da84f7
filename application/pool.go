package application

import "context"

// ConnectionLease is the exclusive, scoped right to use a leased
// PeerConnection, released on Close.
type ConnectionLease interface {
	Conn() PeerConnection
	Close() error
}

// ConnectionPool is a bounded set of PeerConnections to one peer, created
// on demand up to a capacity limit and reused across callers.
type ConnectionPool interface {
	Acquire(ctx context.Context) (ConnectionLease, error)
	GetPrimary(ctx context.Context) (ConnectionLease, error)
	Dispose() error
}
