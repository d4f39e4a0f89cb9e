// Package rversionsclient implements the client side of the per-method
// state machines — the counterpart to internal/protocol. It is
// deliberately free of any REPL/CLI concerns (those live in
// internal/replcli and cmd/rversions); each exported function here drives
// exactly one method exchange over an already-connected, already-greeted
// *wire.Conn.
package rversionsclient

import (
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	"github.com/Whouaaass/rversions/internal/hashfile"
	"github.com/Whouaaass/rversions/internal/ledger"
	"github.com/Whouaaass/rversions/internal/rversions"
	"github.com/Whouaaass/rversions/internal/wire"
)

// Greet performs the client side of the handshake: the client is the
// greeter. It returns an error if the server denies the greeting (either
// an explicit "DENY" or the connection closing before a full "VERSIONS" is
// read).
func Greet(c *wire.Conn) error {
	var hello [rversions.GreetingSize]byte
	wire.PutFixedString(hello[:], rversions.GreetingHello)
	if err := c.WriteFixed(hello[:]); err != nil {
		return err
	}
	ack := make([]byte, len(rversions.GreetingAck))
	if err := c.ReadFixed(ack); err != nil {
		return fmt.Errorf("greeting denied: %w", err)
	}
	if string(ack) != rversions.GreetingAck {
		return fmt.Errorf("greeting denied: unexpected server reply %q", ack)
	}
	return nil
}

func call(c *wire.Conn, method rversions.MethodCode) (rversions.PresCode, error) {
	if err := c.WriteInt32(int32(method)); err != nil {
		return 0, err
	}
	code, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	return rversions.PresCode(code), nil
}

func writeCredentials(c *wire.Conn, username, password string) error {
	buf := make([]byte, rversions.CredentialsSize)
	wire.PutFixedString(buf[:rversions.UserFieldSize], username)
	wire.PutFixedString(buf[rversions.UserFieldSize:], password)
	return c.WriteFixed(buf)
}

// Login drives LOGIN to completion.
func Login(c *wire.Conn, username, password string) (rversions.PresCode, error) {
	gate, err := call(c, rversions.MLogin)
	if err != nil || gate != rversions.RServerOK {
		return gate, err
	}
	if err := writeCredentials(c, username, password); err != nil {
		return 0, err
	}
	code, err := c.ReadInt32()
	return rversions.PresCode(code), err
}

// Register drives REGISTER to completion.
func Register(c *wire.Conn, username, password string) (rversions.PresCode, error) {
	gate, err := call(c, rversions.MRegister)
	if err != nil || gate != rversions.RServerOK {
		return gate, err
	}
	if err := writeCredentials(c, username, password); err != nil {
		return 0, err
	}
	code, err := c.ReadInt32()
	return rversions.PresCode(code), err
}

// Exit drives EXIT; the server does not acknowledge it, it simply tears
// down the connection, so the caller should close the socket immediately
// after this returns.
func Exit(c *wire.Conn) error {
	return c.WriteInt32(int32(rversions.MExit))
}

// Add drives ADD to completion for the local file at localPath, recorded
// on the server under filename with the given comment.
func Add(c *wire.Conn, localPath, filename, comment string) (rversions.PresCode, error) {
	gate, err := call(c, rversions.MAdd)
	if err != nil || gate != rversions.RServerOK {
		return gate, err
	}

	hash, err := hashfile.HashFile(localPath)
	if err != nil {
		return 0, err
	}

	if err := c.WriteString(filename); err != nil {
		return 0, err
	}
	if err := c.WriteString(hash); err != nil {
		return 0, err
	}
	if err := c.WriteString(comment); err != nil {
		return 0, err
	}

	dupCheck, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	if rversions.PresCode(dupCheck) != rversions.RServerOK {
		// RFILE_TO_DATE: the exchange ends here, no file bytes are sent.
		return rversions.PresCode(dupCheck), nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if st.Size() > int64(^uint32(0)) {
		return 0, fmt.Errorf("rversionsclient: %s exceeds the maximum file size", localPath)
	}
	if err := c.WriteFileFrom(f, uint32(st.Size())); err != nil {
		return 0, err
	}

	final, err := c.ReadInt32()
	return rversions.PresCode(final), err
}

// GetResult reports the outcome of a GET exchange, including the
// client-local decision to skip downloading an up-to-date file.
type GetResult struct {
	Code     rversions.PresCode
	UpToDate bool
	Hash     string
}

// Get drives GET to completion: it requests the version-th recorded
// version of filename, compares it against the local file at destPath (if
// any), and either downloads the new content or tells the server DENY
// to skip the transfer.
func Get(c *wire.Conn, version int, filename, destPath string) (GetResult, error) {
	gate, err := call(c, rversions.MGet)
	if err != nil || gate != rversions.RServerOK {
		return GetResult{Code: gate}, err
	}

	if err := c.WriteInt32(int32(version)); err != nil {
		return GetResult{}, err
	}
	if err := c.WriteString(filename); err != nil {
		return GetResult{}, err
	}

	status, err := c.ReadInt32()
	if err != nil {
		return GetResult{}, err
	}
	if rversions.PresCode(status) != rversions.RServerOK {
		return GetResult{Code: rversions.PresCode(status)}, nil
	}

	var hashBuf [rversions.HashFieldSize]byte
	if err := c.ReadFixed(hashBuf[:]); err != nil {
		return GetResult{}, err
	}
	serverHash := wire.FixedString(hashBuf[:])

	localHash, err := hashfile.HashFile(destPath)
	upToDate := err == nil && localHash == serverHash

	if upToDate {
		if err := c.WriteInt32(int32(rversions.CDeny)); err != nil {
			return GetResult{}, err
		}
		return GetResult{Code: rversions.RFileToDate, UpToDate: true, Hash: serverHash}, nil
	}

	if err := c.WriteInt32(int32(rversions.CConfirm)); err != nil {
		return GetResult{}, err
	}

	t, err := renameio.TempFile("", destPath)
	if err != nil {
		return GetResult{}, err
	}
	defer t.Cleanup()

	if _, err := c.ReadFileTo(t, ^uint32(0)); err != nil {
		return GetResult{}, err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return GetResult{}, err
	}

	return GetResult{Code: rversions.RServerOK, Hash: serverHash}, nil
}

// Record is one decoded LIST entry.
type Record struct {
	Filename string
	Hash     string
	Comment  string
}

// List drives LIST to completion, requesting every version (filter == "")
// or only those matching filter.
func List(c *wire.Conn, filter string) ([]Record, rversions.PresCode, error) {
	gate, err := call(c, rversions.MList)
	if err != nil || gate != rversions.RServerOK {
		return nil, gate, err
	}

	var buf [rversions.ListFilterSize]byte
	wire.PutFixedString(buf[:], filter)
	if err := c.WriteFixed(buf[:]); err != nil {
		return nil, 0, err
	}

	count, err := c.ReadInt32()
	if err != nil {
		return nil, 0, err
	}

	recs := make([]Record, 0, count)
	for i := int32(0); i < count; i++ {
		comment, err := c.ReadString(rversions.CommentMaxLen)
		if err != nil {
			return nil, 0, err
		}
		filename, err := c.ReadString(ledger.MaxFilenameLen)
		if err != nil {
			return nil, 0, err
		}
		hash, err := c.ReadString(rversions.HashFieldSize)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, Record{Filename: filename, Hash: hash, Comment: comment})
	}
	return recs, rversions.RServerOK, nil
}
