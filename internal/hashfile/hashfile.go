// Package hashfile implements the one pure-function "external collaborator"
// the core treats opaquely: hashing a regular file's contents into the
// lowercase hex SHA-256 digest used as a blob's content address.
package hashfile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// HashFile returns the lowercase hex SHA-256 digest of the regular file at
// path. It refuses to read anything that is not a regular file, since the
// store's content-addressing invariants assume a stable byte sequence.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashfile: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("hashfile: %w", err)
	}
	if !st.Mode().IsRegular() {
		return "", fmt.Errorf("hashfile: %s is not a regular file", path)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashfile: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashReader returns the lowercase hex SHA-256 digest of everything read
// from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashfile: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
