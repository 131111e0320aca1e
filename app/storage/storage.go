// Package storage is the narrow object-storage surface the enrichment
// pipeline writes side files through (video transcripts, raw snapshots).
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type FileStore interface {
	WriteFile(ctx context.Context, path string, content []byte, contentType string) error
}

// LocalFileStore writes files under a root directory on local disk.
type LocalFileStore struct {
	root string
}

var _ FileStore = (*LocalFileStore)(nil)

func NewLocalFileStore(root string) (*LocalFileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &LocalFileStore{root: root}, nil
}

func (s *LocalFileStore) WriteFile(ctx context.Context, path string, content []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cleaned := filepath.Clean("/" + path)
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("invalid storage path %q", path)
	}
	full := filepath.Join(s.root, cleaned)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
