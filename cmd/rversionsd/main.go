// Command rversionsd is the version-control daemon: `rversionsd <port>`.
// It exits 0 on a clean shutdown and 1 on a startup failure
// (bind/listen/argument).
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/Whouaaass/rversions/internal/blobstore"
	"github.com/Whouaaass/rversions/internal/ledger"
	"github.com/Whouaaass/rversions/internal/protocol"
	"github.com/Whouaaass/rversions/internal/rlog"
	"github.com/Whouaaass/rversions/internal/supervisor"
	"github.com/Whouaaass/rversions/internal/userstore"
)

var (
	port         = kingpin.Arg("port", "TCP port to listen on").Required().Int()
	versionsDir  = kingpin.Flag("versions-dir", "root directory for the blob store, ledgers, and user store").Default("./.versions").String()
	logLevel     = kingpin.Flag("log-level", "debug, info, warn, or error").Default("info").String()
)

func main() {
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version("rversionsd 1.0").Author("Whouaaass")
	kingpin.Parse()

	logger := rlog.New(os.Stderr, *logLevel)

	if err := run(logger); err != nil {
		logger.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(logger *logrus.Logger) error {
	blobs, err := blobstore.Open(*versionsDir)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	users, err := userstore.Open(*versionsDir + "/users.db")
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}
	ledgers := ledger.NewRegistry(*versionsDir)

	srv := &protocol.Server{
		Logger:  logger,
		Blobs:   blobs,
		Users:   users,
		Ledgers: ledgers,
	}
	sv := supervisor.New(logger, srv)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", *port, err)
	}
	logger.Infof("rversionsd listening on %s", ln.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sv.Serve(ctx, ln)
	logger.Infof("rversionsd shutting down")
	return err
}
