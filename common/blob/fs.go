package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore keeps blobs as JSON files on local disk. Blob IDs are derived
// from execution and node IDs, which are filesystem-safe by construction.
type FSStore struct {
	dir string
}

// NewFSStore creates a filesystem blob store rooted at dir.
// The directory is created lazily on first Put.
func NewFSStore(dir string) *FSStore {
	return &FSStore{dir: dir}
}

func (s *FSStore) Put(ctx context.Context, blobID string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create blob dir: %w", err)
	}
	path := s.path(blobID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob %s: %w", blobID, err)
	}
	return path, nil
}

func (s *FSStore) Get(ctx context.Context, blobID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(blobID))
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", blobID, err)
	}
	return data, nil
}

func (s *FSStore) Close() error { return nil }

func (s *FSStore) path(blobID string) string {
	return filepath.Join(s.dir, blobID+".json")
}
