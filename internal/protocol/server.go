// Package protocol implements the server side of the per-method state
// machines: the dispatch loop that reads one method code at a time, gates
// on authentication, and drives ADD/GET/LIST/LOGIN/REGISTER/EXIT to
// completion.
package protocol

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Whouaaass/rversions/internal/blobstore"
	"github.com/Whouaaass/rversions/internal/ledger"
	"github.com/Whouaaass/rversions/internal/rversions"
	"github.com/Whouaaass/rversions/internal/userstore"
	"github.com/Whouaaass/rversions/internal/wire"
)

// Server holds the shared stores every worker dispatches against. One
// Server is constructed at startup and threaded through every connection,
// mirroring how gokrazy/rsync threads its *rsyncd.Server through HandleConn.
type Server struct {
	Logger  *logrus.Logger
	Blobs   *blobstore.Store
	Users   *userstore.Store
	Ledgers *ledger.Registry
}

// authRequired reports whether m needs an authenticated session.
func authRequired(m rversions.MethodCode) bool {
	switch m {
	case rversions.MAdd, rversions.MGet, rversions.MList:
		return true
	default:
		return false
	}
}

// DispatchOne reads and fully services one method exchange. It returns
// done=true on EXIT and when reading the method code or writing the gate
// ack fails. Any non-nil err means the connection can no longer be used and
// the caller ends it: a framing failure (wire.ErrSocket, or wire.ErrTooBig
// for an oversized string), or a ledger, user-store or blob-stat/open
// failure inside a handler. Those store failures are not reported to the
// client in-band; only a failed blob write during ADD is answered with
// RERROR. Protocol outcomes (RDENIED, RFILE_TO_DATE, RUSER_NOT_FOUND, ...)
// are written in-band and DispatchOne returns (false, nil) so the loop
// continues.
func (s *Server) DispatchOne(c *wire.Conn, sess *Session) (done bool, err error) {
	code, err := c.ReadInt32()
	if err != nil {
		return true, err
	}
	m := rversions.MethodCode(code)

	switch m {
	case rversions.MGet, rversions.MAdd, rversions.MList, rversions.MExit, rversions.MLogin, rversions.MRegister:
		if authRequired(m) && !sess.Authenticated {
			return false, c.WriteInt32(int32(rversions.RDenied))
		}
	default:
		// Legacy quirk: unrecognized method codes are acked RSERVER_OK
		// instead of RILLEGAL_METHOD. Preserved for wire compatibility with
		// the observed protocol, not because it's right.
		s.Logger.Warnf("unrecognized method code %d, acking RSERVER_OK", code)
		return false, c.WriteInt32(int32(rversions.RServerOK))
	}

	if m == rversions.MExit {
		return true, nil
	}

	// Universal gate ack for every other recognized, authorized method.
	if err := c.WriteInt32(int32(rversions.RServerOK)); err != nil {
		return true, err
	}

	switch m {
	case rversions.MAdd:
		return false, s.handleAdd(c, sess)
	case rversions.MGet:
		return false, s.handleGet(c, sess)
	case rversions.MList:
		return false, s.handleList(c, sess)
	case rversions.MLogin:
		return false, s.handleLogin(c, sess)
	case rversions.MRegister:
		return false, s.handleRegister(c, sess)
	}
	return false, nil
}

func (s *Server) handleAdd(c *wire.Conn, sess *Session) error {
	filename, err := c.ReadString(ledger.MaxFilenameLen)
	if err != nil {
		return err
	}
	hash, err := c.ReadString(rversions.HashHexLen)
	if err != nil {
		return err
	}
	comment, err := c.ReadString(rversions.CommentMaxLen)
	if err != nil {
		return err
	}

	dup, err := s.isDuplicate(sess.Username, filename, hash)
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if dup {
		return c.WriteInt32(int32(rversions.RFileToDate))
	}
	if err := c.WriteInt32(int32(rversions.RServerOK)); err != nil {
		return err
	}

	size, err := c.ReadUint32()
	if err != nil {
		return err
	}
	if err := s.Blobs.Put(hash, io.LimitReader(c.R, int64(size)), int64(size)); err != nil {
		s.Logger.Errorf("writing blob %s: %v", hash, err)
		return c.WriteInt32(int32(rversions.RError))
	}
	if err := c.WriteInt32(int32(rversions.RServerOK)); err != nil {
		return err
	}

	appended, err := s.Ledgers.Add(sess.Username, ledger.FileVersion{
		Filename: filename,
		Hash:     hash,
		Comment:  comment,
	})
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if !appended {
		// Lost a race with a concurrent identical ADD from the same user
		// between the duplicate check above and the append; the blob is
		// already written and idempotent, nothing further to do.
		s.Logger.Debugf("ADD %s/%s raced to RFILE_TO_DATE after blob write", sess.Username, filename)
	}
	return nil
}

// isDuplicate checks whether this (filename, hash) pair is already recorded
// ahead of streaming the file, so the client never uploads bytes for a
// version it already has.
func (s *Server) isDuplicate(username, filename, hash string) (bool, error) {
	recs, err := s.Ledgers.List(username, filename)
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (s *Server) handleLogin(c *wire.Conn, sess *Session) error {
	var buf [rversions.CredentialsSize]byte
	if err := c.ReadFixed(buf[:]); err != nil {
		return err
	}
	username := wire.FixedString(buf[:rversions.UserFieldSize])
	password := wire.FixedString(buf[rversions.UserFieldSize:])

	rec, ok, err := s.Users.Lookup(username)
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if !ok {
		return c.WriteInt32(int32(rversions.RUserNotFound))
	}
	if !userstore.Authenticate(rec, password) {
		return c.WriteInt32(int32(rversions.RDenied))
	}
	sess.Username = username
	sess.Authenticated = true
	s.Logger.Infof("user %q logged in", username)
	return c.WriteInt32(int32(rversions.RServerOK))
}

func (s *Server) handleRegister(c *wire.Conn, sess *Session) error {
	var buf [rversions.CredentialsSize]byte
	if err := c.ReadFixed(buf[:]); err != nil {
		return err
	}
	username := wire.FixedString(buf[:rversions.UserFieldSize])
	password := wire.FixedString(buf[rversions.UserFieldSize:])

	created, err := s.Users.Register(username, password)
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if !created {
		return c.WriteInt32(int32(rversions.RUserAlreadyExists))
	}
	sess.Username = username
	sess.Authenticated = true
	s.Logger.Infof("user %q registered", username)
	return c.WriteInt32(int32(rversions.RServerOK))
}

func (s *Server) handleList(c *wire.Conn, sess *Session) error {
	var buf [rversions.ListFilterSize]byte
	if err := c.ReadFixed(buf[:]); err != nil {
		return err
	}
	filter := wire.FixedString(buf[:])

	recs, err := s.Ledgers.List(sess.Username, filter)
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}

	if err := c.WriteInt32(int32(len(recs))); err != nil {
		return err
	}
	for _, r := range recs {
		if err := c.WriteString(r.Comment); err != nil {
			return err
		}
		if err := c.WriteString(r.Filename); err != nil {
			return err
		}
		if err := c.WriteString(r.Hash); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleGet(c *wire.Conn, sess *Session) error {
	version, err := c.ReadInt32()
	if err != nil {
		return err
	}
	filename, err := c.ReadString(ledger.MaxFilenameLen)
	if err != nil {
		return err
	}

	rec, ok, err := s.Ledgers.NthMatch(sess.Username, filename, int(version))
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	if !ok {
		return c.WriteInt32(int32(rversions.RFileNotFound))
	}
	if err := c.WriteInt32(int32(rversions.RServerOK)); err != nil {
		return err
	}

	var hashBuf [rversions.HashFieldSize]byte
	wire.PutFixedString(hashBuf[:], rec.Hash)
	if err := c.WriteFixed(hashBuf[:]); err != nil {
		return err
	}

	sub, err := c.ReadInt32()
	if err != nil {
		return err
	}
	if rversions.CresCode(sub) != rversions.CConfirm {
		return nil
	}

	size, err := s.Blobs.Size(rec.Hash)
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	f, err := s.Blobs.Open(rec.Hash)
	if err != nil {
		return fmt.Errorf("protocol: %w", err)
	}
	defer f.Close()
	return c.WriteFileFrom(f, uint32(size))
}
