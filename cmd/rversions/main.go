// Command rversions is the interactive client: `rversions <ip> <port>`
// connects, performs the greeting handshake, and enters a REPL.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"golang.org/x/crypto/ssh/terminal"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/Whouaaass/rversions/internal/replcli"
	"github.com/Whouaaass/rversions/internal/rlog"
	"github.com/Whouaaass/rversions/internal/rversionsclient"
	"github.com/Whouaaass/rversions/internal/wire"
)

var (
	ip   = kingpin.Arg("ip", "server address").Required().String()
	port = kingpin.Arg("port", "server TCP port").Required().Int()
)

func main() {
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version("rversions 1.0").Author("Whouaaass")
	kingpin.Parse()

	logger := rlog.New(os.Stderr, "warn")

	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", *ip, *port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	c := wire.New(conn)
	if err := rversionsclient.Greet(c); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	in := bufio.NewReader(os.Stdin)
	deps := replcli.Deps{
		Conn:      c,
		Logger:    logger,
		Out:       os.Stdout,
		ReadCreds: func() (string, string, error) { return readCreds(in) },
	}

	if err := replcli.Run(deps, in); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// readCreds prompts for a username on stdin and a password with the
// terminal echo disabled, grounded on nabbar-golib's console/prompt.go use
// of golang.org/x/crypto/ssh/terminal for exactly this.
func readCreds(in *bufio.Reader) (username, password string, err error) {
	fmt.Print("username: ")
	line, err := in.ReadString('\n')
	if err != nil {
		return "", "", err
	}
	username = strings.TrimSpace(line)

	fmt.Print("password: ")
	pwBytes, err := terminal.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", "", err
	}
	return username, string(pwBytes), nil
}
