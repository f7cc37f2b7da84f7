package application

import "time"

// SyncedFile is the Repository's value type: the known state of one file
// under the sync folder, keyed by its RelativePath.
type SyncedFile struct {
	RelativePath string            `json:"relativePath"`
	FileSize     uint64            `json:"fileSize"`
	LastModified time.Time         `json:"lastModified"`
	ContentHash  string            `json:"contentHash"`
	Extra        map[string]string `json:"extra,omitempty"`
}
