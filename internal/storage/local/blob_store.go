// Package local archives raw fetched documents under a directory tree on the
// local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Config locates the archive root.
type Config struct {
	// BaseDir is the directory all objects are written beneath.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes each object to its own file beneath the base directory.
type BlobStore struct {
	root string
}

// New ensures the base directory exists (creating it when absent) and is
// writable, then returns the store.
func New(cfg Config) (*BlobStore, error) {
	root := strings.TrimSpace(cfg.BaseDir)
	if root == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	probe, err := os.CreateTemp(root, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("base directory not writable: %w", err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("close probe file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("remove probe file: %w", err)
	}
	return &BlobStore{root: root}, nil
}

// PutObject streams data to base/path, creating parent directories, and
// returns the file:// URI. Paths escaping the base directory are rejected.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	rel := strings.TrimSpace(path)
	if rel == "" {
		return "", errors.New("object path is required")
	}
	dest := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(dest, filepath.Clean(s.root)+string(filepath.Separator)) {
		return "", fmt.Errorf("object path %q escapes the base directory", rel)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("create object directory: %w", err)
	}
	// #nosec G304 -- dest is confined to the base directory above.
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create object file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close object file: %w", err)
	}
	return "file://" + dest, nil
}
