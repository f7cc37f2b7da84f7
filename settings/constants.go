package settings

import "time"

// Protocol-wide tunable defaults.
const (
	MaxParallelConnections = 4
	ConnectionTimeout      = 10 * time.Second
	MaxRetryAttempts       = 3
	RetryBaseDelay         = 500 * time.Millisecond

	DefaultBufferSize = 64 * 1024
	MaxBufferSize     = 1 << 20
	MinBufferSize     = 8 * 1024

	FastLANRTTMillis  = 2
	SlowLinkRTTMillis = 150

	FileStreamBufferSize = 80 * 1024

	// PoolPollInterval is the bounded-polling wait cadence for Acquire.
	PoolPollInterval = 10 * time.Millisecond
)
