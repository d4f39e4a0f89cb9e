// Package replcli implements the client's interactive command loop.
// Tokenization uses shlex, the same library gokrazy/rsync's
// internal/maincmd/clientmaincmd.go reaches for to split a command line
// into argv-style tokens, so a quoted comment (`add notes.txt "first
// version"`) survives as one argument instead of being split on every
// space.
package replcli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"

	"github.com/Whouaaass/rversions/internal/rversions"
	"github.com/Whouaaass/rversions/internal/rversionsclient"
	"github.com/Whouaaass/rversions/internal/wire"
)

// Deps are the pieces of REPL behavior that reach outside the package:
// reading a username/password pair (with no local echo for the password)
// and writing output for the user to see.
type Deps struct {
	Conn       *wire.Conn
	Logger     *logrus.Logger
	Out        io.Writer
	ReadCreds  func() (username, password string, err error)
}

const helpText = `commands:
  login                    prompt for username/password and LOGIN
  register                 prompt for username/password and REGISTER
  list                     LIST every version of every file
  list <file>               LIST versions of <file>
  add <file> [comment...]  hash and ADD <file> with an optional comment
  get <version> <file>     GET the <version>-th recorded version of <file>
  help                     print this text
  exit                     EXIT and disconnect
`

func presMessage(code rversions.PresCode) string {
	switch code {
	case rversions.RServerOK:
		return "ok"
	case rversions.RFileToDate:
		return "file is up to date"
	case rversions.RFileOutdated:
		return "file is outdated"
	case rversions.RFileNotFound:
		return "file not found"
	case rversions.RVersionNotFound:
		return "version not found"
	case rversions.RSocketError:
		return "socket error"
	case rversions.RIllegalMethod:
		return "illegal method"
	case rversions.RError:
		return "server error"
	case rversions.RDenied:
		return "denied (login required, or bad credentials)"
	case rversions.RUserNotFound:
		return "user not found"
	case rversions.RUserAlreadyExists:
		return "user already exists"
	default:
		return fmt.Sprintf("unknown response code %d", code)
	}
}

// Run reads commands from in until "exit" or EOF, dispatching each over
// d.Conn. It returns nil on a clean "exit" or EOF, and an error only for a
// framing failure severe enough that the connection must be abandoned.
func Run(d Deps, in io.Reader) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(d.Out, "> ")
	for sc.Scan() {
		line := sc.Text()
		args, err := shlex.Split(line)
		if err != nil {
			fmt.Fprintf(d.Out, "error: %v\n> ", err)
			continue
		}
		if len(args) == 0 {
			fmt.Fprint(d.Out, "> ")
			continue
		}

		done, err := dispatch(d, args)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		fmt.Fprint(d.Out, "> ")
	}
	return nil
}

func dispatch(d Deps, args []string) (done bool, err error) {
	switch args[0] {
	case "help":
		fmt.Fprint(d.Out, helpText)

	case "login", "register":
		username, password, err := d.ReadCreds()
		if err != nil {
			fmt.Fprintf(d.Out, "error: %v\n", err)
			return false, nil
		}
		var code rversions.PresCode
		if args[0] == "login" {
			code, err = rversionsclient.Login(d.Conn, username, password)
		} else {
			code, err = rversionsclient.Register(d.Conn, username, password)
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintln(d.Out, presMessage(code))

	case "list":
		filter := ""
		if len(args) > 1 {
			filter = args[1]
		}
		recs, code, err := rversionsclient.List(d.Conn, filter)
		if err != nil {
			return false, err
		}
		if code != rversions.RServerOK {
			fmt.Fprintln(d.Out, presMessage(code))
			break
		}
		for _, r := range recs {
			fmt.Fprintf(d.Out, "%s\t%s\t%s\n", r.Filename, r.Hash, r.Comment)
		}

	case "add":
		if len(args) < 2 {
			fmt.Fprintln(d.Out, "usage: add <file> [comment...]")
			break
		}
		path := args[1]
		comment := strings.Join(args[2:], " ")
		code, err := rversionsclient.Add(d.Conn, path, path, comment)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(d.Out, presMessage(code))

	case "get":
		if len(args) != 3 {
			fmt.Fprintln(d.Out, "usage: get <version> <file>")
			break
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintln(d.Out, "version must be an integer")
			break
		}
		res, err := rversionsclient.Get(d.Conn, version, args[2], args[2])
		if err != nil {
			return false, err
		}
		if res.UpToDate {
			fmt.Fprintln(d.Out, "file up to date")
		} else {
			fmt.Fprintln(d.Out, presMessage(res.Code))
		}

	case "exit":
		if err := rversionsclient.Exit(d.Conn); err != nil {
			return true, err
		}
		return true, nil

	default:
		fmt.Fprintf(d.Out, "unknown command %q (try 'help')\n", args[0])
	}
	return false, nil
}
