package protocol_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/Whouaaass/rversions/internal/blobstore"
	"github.com/Whouaaass/rversions/internal/ledger"
	"github.com/Whouaaass/rversions/internal/protocol"
	"github.com/Whouaaass/rversions/internal/rlog"
	"github.com/Whouaaass/rversions/internal/rversions"
	"github.com/Whouaaass/rversions/internal/rversionsclient"
	"github.com/Whouaaass/rversions/internal/userstore"
	"github.com/Whouaaass/rversions/internal/wire"
)

// newTestServer wires up a Server whose stores live in a fresh temp dir,
// the same three stores cmd/rversionsd constructs at startup.
func newTestServer(t *testing.T) *protocol.Server {
	t.Helper()
	dir := t.TempDir()

	blobs, err := blobstore.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	users, err := userstore.Open(filepath.Join(dir, "users.db"))
	if err != nil {
		t.Fatal(err)
	}

	return &protocol.Server{
		Logger:  rlog.Discard(),
		Blobs:   blobs,
		Users:   users,
		Ledgers: ledger.NewRegistry(dir),
	}
}

// serveOneConn runs the greeting + dispatch loop over serverConn until the
// client sends EXIT or the connection errors, mirroring
// internal/supervisor.Supervisor.handle without the registry bookkeeping.
func serveOneConn(t *testing.T, srv *protocol.Server, serverConn net.Conn) {
	t.Helper()
	c := wire.New(serverConn)
	if err := protocol.Greet(c); err != nil {
		return
	}
	sess := &protocol.Session{}
	for {
		done, err := srv.DispatchOne(c, sess)
		if err != nil || done {
			return
		}
	}
}

func dial(t *testing.T, srv *protocol.Server) *wire.Conn {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	go serveOneConn(t, srv, serverConn)

	c := wire.New(clientConn)
	if err := rversionsclient.Greet(c); err != nil {
		t.Fatalf("greeting: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })
	return c
}

func mustLogin(t *testing.T, c *wire.Conn, username, password string) {
	t.Helper()
	if code, err := rversionsclient.Register(c, username, password); err != nil {
		t.Fatalf("register: %v", err)
	} else if code != rversions.RServerOK {
		t.Fatalf("register: got %v, want RSERVER_OK", code)
	}
}

func TestEndToEndScenario(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	mustLogin(t, c, "alice", "hunter2")

	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notes, []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// (1) add notes.txt, comment "first"; list -> one entry with the
	// known SHA-256 of "hello\n".
	code, err := rversionsclient.Add(c, notes, "notes.txt", "first")
	if err != nil {
		t.Fatal(err)
	}
	if code != rversions.RServerOK {
		t.Fatalf("first add: got %v, want RSERVER_OK", code)
	}

	recs, listCode, err := rversionsclient.List(c, "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if listCode != rversions.RServerOK {
		t.Fatalf("list: got %v", listCode)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	const wantHash = "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"
	if recs[0].Hash != wantHash {
		t.Errorf("got hash %s, want %s", recs[0].Hash, wantHash)
	}
	if recs[0].Comment != "first" {
		t.Errorf("got comment %q, want %q", recs[0].Comment, "first")
	}

	// (2) re-adding unchanged contents -> RFILE_TO_DATE, no new record.
	code, err = rversionsclient.Add(c, notes, "notes.txt", "first again")
	if err != nil {
		t.Fatal(err)
	}
	if code != rversions.RFileToDate {
		t.Fatalf("duplicate add: got %v, want RFILE_TO_DATE", code)
	}
	recs, _, err = rversionsclient.List(c, "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("ledger grew on a duplicate add: got %d records", len(recs))
	}

	// (3) modify the file and add again with a new comment -> two entries.
	if err := os.WriteFile(notes, []byte("world\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, err = rversionsclient.Add(c, notes, "notes.txt", "second")
	if err != nil {
		t.Fatal(err)
	}
	if code != rversions.RServerOK {
		t.Fatalf("second add: got %v, want RSERVER_OK", code)
	}
	recs, _, err = rversionsclient.List(c, "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].Comment != "first" || recs[1].Comment != "second" {
		t.Fatalf("got %+v, want [first, second] in order", recs)
	}

	// (4) get version 1 while the local file holds "world\n" -> download
	// replaces it with the original "hello\n".
	res, err := rversionsclient.Get(c, 1, "notes.txt", notes)
	if err != nil {
		t.Fatal(err)
	}
	if res.UpToDate {
		t.Fatal("expected a download, not an up-to-date skip")
	}
	got, err := os.ReadFile(notes)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello\n" {
		t.Errorf("got %q, want %q", got, "hello\n")
	}

	// (5) get version 1 again, local file already "hello\n" -> no
	// transfer, reported as up to date.
	res, err = rversionsclient.Get(c, 1, "notes.txt", notes)
	if err != nil {
		t.Fatal(err)
	}
	if !res.UpToDate {
		t.Fatal("expected up-to-date skip")
	}
}

func TestUnauthenticatedAddIsDenied(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)

	code, err := rversionsclient.Add(c, os.Args[0], "whatever", "comment")
	if err != nil {
		t.Fatal(err)
	}
	if code != rversions.RDenied {
		t.Fatalf("got %v, want RDENIED", code)
	}

	// the connection stays usable for login afterwards.
	mustLogin(t, c, "bob", "s3cret")
}

func TestLoginDistinguishesNotFoundFromDenied(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	mustLogin(t, c, "carol", "correct-horse")

	// carol is already authenticated on this connection via register; use
	// a second connection to exercise LOGIN directly.
	c2 := dial(t, srv)
	if code, err := rversionsclient.Login(c2, "nobody", "whatever"); err != nil {
		t.Fatal(err)
	} else if code != rversions.RUserNotFound {
		t.Fatalf("got %v, want RUSER_NOT_FOUND", code)
	}

	c3 := dial(t, srv)
	if code, err := rversionsclient.Login(c3, "carol", "wrong-password"); err != nil {
		t.Fatal(err)
	} else if code != rversions.RDenied {
		t.Fatalf("got %v, want RDENIED", code)
	}

	c4 := dial(t, srv)
	if code, err := rversionsclient.Login(c4, "carol", "correct-horse"); err != nil {
		t.Fatal(err)
	} else if code != rversions.RServerOK {
		t.Fatalf("got %v, want RSERVER_OK", code)
	}
}

func TestRegisterRejectsExistingUsername(t *testing.T) {
	srv := newTestServer(t)
	c := dial(t, srv)
	mustLogin(t, c, "dave", "pw")

	c2 := dial(t, srv)
	code, err := rversionsclient.Register(c2, "dave", "different")
	if err != nil {
		t.Fatal(err)
	}
	if code != rversions.RUserAlreadyExists {
		t.Fatalf("got %v, want RUSER_ALREADY_EXISTS", code)
	}
}

func TestGreetingDeniesWrongMagic(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	srv := newTestServer(t)
	go serveOneConn(t, srv, serverConn)

	c := wire.New(clientConn)
	if err := c.WriteFixed(make([]byte, rversions.GreetingSize)); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if err := c.ReadFixed(buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "DENY" {
		t.Fatalf("got %q, want DENY", buf)
	}
}
