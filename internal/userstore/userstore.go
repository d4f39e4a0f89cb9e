// Package userstore implements the append-only user record store: one
// fixed-width UserRecord per registered username, guarded by a single mutex
// held across both reads and appends.
//
// The original protocol this service is based on stored passwords in
// plaintext. That's not carried forward here: passwords are hashed with
// bcrypt before they ever reach disk, using the same library
// sandia-minimega's phenix/web/rbac/user.go uses for its user store.
package userstore

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/Whouaaass/rversions/internal/wire"
)

const (
	usernameFieldSize = 64
	passwordFieldSize = 64
	recordSize        = usernameFieldSize + passwordFieldSize
)

// ErrUsernameTooLong and ErrPasswordTooLong are returned when a credential
// does not fit its on-disk field.
var (
	ErrUsernameTooLong = errors.New("userstore: username too long")
	ErrPasswordTooLong = errors.New("userstore: password too long")
)

// Record is one decoded UserRecord.
type Record struct {
	Username     string
	PasswordHash string
}

// Store is the append-only, mutex-guarded user database.
type Store struct {
	mu   sync.Mutex
	path string
}

// Open ensures the backing file exists (create-if-missing) and returns a
// Store.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("userstore: %w", err)
	}
	f.Close()
	return &Store{path: path}, nil
}

func encode(username, passwordHash string) ([]byte, error) {
	if len(username) > usernameFieldSize {
		return nil, ErrUsernameTooLong
	}
	if len(passwordHash) > passwordFieldSize {
		return nil, ErrPasswordTooLong
	}
	buf := make([]byte, recordSize)
	wire.PutFixedString(buf[:usernameFieldSize], username)
	wire.PutFixedString(buf[usernameFieldSize:], passwordHash)
	return buf, nil
}

func decode(buf []byte) Record {
	return Record{
		Username:     wire.FixedString(buf[:usernameFieldSize]),
		PasswordHash: wire.FixedString(buf[usernameFieldSize:]),
	}
}

// readAll loads every record in the store. Callers must hold s.mu.
func (s *Store) readAll() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("userstore: %w", err)
	}
	n := len(data) / recordSize
	recs := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		recs = append(recs, decode(data[i*recordSize:(i+1)*recordSize]))
	}
	return recs, nil
}

// Lookup returns the record for username, if any.
func (s *Store) Lookup(username string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAll()
	if err != nil {
		return Record{}, false, err
	}
	for _, r := range recs {
		if r.Username == username {
			return r, true, nil
		}
	}
	return Record{}, false, nil
}

// Register appends a new user record, hashing password with bcrypt. It
// returns (false, nil) if username is already taken (the append is
// rejected).
func (s *Store) Register(username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.readAll()
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.Username == username {
			return false, nil
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, fmt.Errorf("userstore: %w", err)
	}

	buf, err := encode(username, string(hash))
	if err != nil {
		return false, err
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("userstore: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return false, fmt.Errorf("userstore: %w", err)
	}
	return true, nil
}

// Authenticate reports whether password matches the stored hash for
// username. The not-found case is surfaced separately by Lookup so callers
// can distinguish RUSER_NOT_FOUND from RDENIED.
func Authenticate(rec Record, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password))
	return err == nil
}
