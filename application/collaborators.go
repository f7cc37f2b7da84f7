package application

import "context"

// SyncService is the external sync orchestrator the Rescan Engine drives.
// Its implementation lives outside this module; only its contract is
// needed here.
type SyncService interface {
	ForceSyncAsync(ctx context.Context) error
}

// IgnoreMatcher is the external ignore-pattern matcher: a pure predicate
// on a relative path. Its implementation lives outside this module. Any
// panic recovered by the caller is treated as "not ignored".
type IgnoreMatcher interface {
	IsIgnored(relativePath string) bool
}
