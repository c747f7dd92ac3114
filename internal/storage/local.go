// Package storage persists uploaded files on local disk or in an
// S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore writes files below a root directory on disk.
type LocalStore struct{}

func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// Save writes r to root/relPath, creating parent directories and replacing
// any existing file. The data goes to a temp file first and is renamed into
// place, so readers never see a partial poster.
func (s *LocalStore) Save(ctx context.Context, root, relPath string, r io.Reader) error {
	dest, err := resolve(root, relPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// resolve joins relPath onto root and rejects paths that escape it.
func resolve(root, relPath string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("storage root is empty")
	}
	cleanRoot := filepath.Clean(root)
	dest := filepath.Join(cleanRoot, filepath.FromSlash(relPath))
	if dest != cleanRoot && !strings.HasPrefix(dest, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", relPath)
	}
	return dest, nil
}
