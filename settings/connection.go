package settings

import "time"

// ConnectionSettings configures how this node dials and times out a single
// TCP connection attempt to a peer.
type ConnectionSettings struct {
	ConnectionTimeout time.Duration
	MaxRetryAttempts  int
	RetryBaseDelay    time.Duration
}

func DefaultConnectionSettings() ConnectionSettings {
	return ConnectionSettings{
		ConnectionTimeout: ConnectionTimeout,
		MaxRetryAttempts:  MaxRetryAttempts,
		RetryBaseDelay:    RetryBaseDelay,
	}
}
