// Package blobstore implements the content-addressed blob directory: one
// immutable file per unique hash, never deleted or reference-counted.
package blobstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Store is a directory of blobs named by their hex content hash.
type Store struct {
	dir string
}

// Open ensures dir exists (create-if-missing, 0755 on POSIX, matching
// gokrazy/rsync's pattern of creating destination directories lazily) and
// returns a Store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the on-disk path for a given hash, without checking
// existence.
func (s *Store) Path(hash string) string {
	return filepath.Join(s.dir, hash)
}

// Exists reports whether a blob for hash is already present.
func (s *Store) Exists(hash string) bool {
	_, err := os.Stat(s.Path(hash))
	return err == nil
}

// Put writes exactly size bytes from r to the blob named hash. Writing to
// an existing hash is idempotent by construction (the same hash implies the
// same content), so Put always (re)writes the target rather than erroring
// on a pre-existing blob. The write is atomic via a temp-file-then-rename,
// so a reader can never observe a partially written blob; the spec's open
// question about cleaning up a half-written blob after a later failure
// therefore cannot arise for the blob file itself (see DESIGN.md).
func (s *Store) Put(hash string, r io.Reader, size int64) error {
	t, err := renameio.TempFile("", s.Path(hash))
	if err != nil {
		return fmt.Errorf("blobstore: %w", err)
	}
	defer t.Cleanup()

	if _, err := io.CopyN(t, r, size); err != nil {
		return fmt.Errorf("blobstore: %w", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("blobstore: %w", err)
	}
	return nil
}

// Open returns a reader for the blob named hash.
func (s *Store) Open(hash string) (*os.File, error) {
	f, err := os.Open(s.Path(hash))
	if err != nil {
		return nil, fmt.Errorf("blobstore: %w", err)
	}
	return f, nil
}

// Size reports the on-disk size of a blob.
func (s *Store) Size(hash string) (int64, error) {
	st, err := os.Stat(s.Path(hash))
	if err != nil {
		return 0, fmt.Errorf("blobstore: %w", err)
	}
	return st.Size(), nil
}
