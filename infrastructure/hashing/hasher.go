package hashing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/nordicnode/swarm/application"
	"github.com/nordicnode/swarm/settings"
)

// maxTransientRetries bounds the read-retry loop for a single file hash.
// Every error except not-exist and permission failures is treated as
// transient (EINTR-class, momentary sharing-violation on Windows) and
// retried; those two propagate immediately.
const maxTransientRetries = 3

// FileHasher stream-hashes a file's contents, retrying on transient I/O.
type FileHasher struct{}

func NewFileHasher() *FileHasher {
	return &FileHasher{}
}

// HashFile returns the uppercase hex SHA-256 of path's contents.
func (h *FileHasher) HashFile(ctx context.Context, path string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxTransientRetries; attempt++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		sum, err := h.hashOnce(ctx, path)
		if err == nil {
			return strings.ToUpper(hex.EncodeToString(sum[:])), nil
		}
		lastErr = err
		if !isTransient(err) {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("hash %s: exhausted retries: %w", path, lastErr)
}

func (h *FileHasher) hashOnce(ctx context.Context, path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte

	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer func() { _ = f.Close() }()

	hasher := sha256.New()
	buf := make([]byte, settings.FileStreamBufferSize)
	for {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, werr := hasher.Write(buf[:n]); werr != nil {
				return sum, werr
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return sum, readErr
		}
	}

	copy(sum[:], hasher.Sum(nil))
	return sum, nil
}

// isTransient reports whether err is worth retrying: anything but a
// permission or not-exist failure, which will never resolve on retry.
func isTransient(err error) bool {
	return !os.IsNotExist(err) && !os.IsPermission(err)
}

var _ application.Hasher = (*FileHasher)(nil)
