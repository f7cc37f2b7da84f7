package application

import "context"

// Hasher computes a content hash for a file, used by the Rescan Engine's
// deep mode and by integrity checks elsewhere.
type Hasher interface {
	HashFile(ctx context.Context, path string) (string, error)
}
