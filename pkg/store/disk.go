package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/vango-dev/trialstream/pkg/ndarray"
)

// DiskStore writes .npy artifacts below a root directory.
type DiskStore struct {
	dir      string
	reserved map[string]bool
}

// NewDiskStore creates a DiskStore rooted at dir, creating it if needed.
// Reserved entries are paths relative to dir that belong to something else
// (the record logs); an array whose directory would land on one is stored
// under a "_"-prefixed name instead.
func NewDiskStore(dir string, reserved ...string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	ds := &DiskStore{dir: abs, reserved: make(map[string]bool, len(reserved))}
	for _, r := range reserved {
		top, _, _ := strings.Cut(filepath.ToSlash(filepath.Clean(r)), "/")
		ds.reserved[top] = true
	}
	return ds, nil
}

// Dir returns the absolute root directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Put writes arr to a fresh file and returns its absolute path. Names are
// claimed with O_EXCL so concurrent writers never share a file.
func (s *DiskStore) Put(ctx context.Context, key ArtifactKey, arr *ndarray.Array) (string, error) {
	if name := SanitizeName(key.Name); s.reserved[name] {
		key.Name = "_" + name
	}
	for attempt := 0; attempt < maxCollisions; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path := filepath.Join(s.dir, filepath.FromSlash(ArtifactPath(key, attempt)))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return "", err
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}

		if err := ndarray.WriteNPY(f, arr); err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			os.Remove(path)
			return "", err
		}
		return path, nil
	}
	return "", ErrNameExhausted
}
