package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes receipt PDFs to the local filesystem. It is the fallback used
// when no cloud bucket is configured, and the development default.
type Store struct {
	root string
}

// NewStore creates the root directory if needed and returns the store.
func NewStore(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("local store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating local store root %q: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory artifacts are written under.
func (s *Store) Root() string {
	return s.root
}

// Path returns the on-disk location for the named artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, filepath.Base(name))
}

// Write persists content under the artifact name and returns the full path.
func (s *Store) Write(ctx context.Context, name string, content []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(name) == "" {
		return "", errors.New("artifact name is required")
	}

	path := s.Path(name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("writing artifact %q: %w", path, err)
	}
	return path, nil
}

// Read loads a previously written artifact.
func (s *Store) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("reading artifact %q: %w", name, err)
	}
	return b, nil
}

// Exists reports whether the named artifact has been written.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}
