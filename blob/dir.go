package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirStore serves objects from files below a root directory. References are
// slash separated paths relative to the root.
type DirStore struct {
	root string
}

var _ Store = (*DirStore)(nil)

// NewDirStore creates a store rooted at dir, which must exist.
func NewDirStore(dir string) (*DirStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	return &DirStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *DirStore) Root() string {
	return s.root
}

// Fetch reads the file named by ref.
func (s *DirStore) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	default:
		return nil, fmt.Errorf("%w: %s: %v", ErrIO, ref, err)
	}
}

// resolve maps ref to a path below the root, refusing anything that would
// escape it.
func (s *DirStore) resolve(ref string) (string, error) {
	if ref == "" || strings.ContainsRune(ref, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(ref, "/")))
	if clean == "." || !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(s.root, clean), nil
}
