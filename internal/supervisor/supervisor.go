// Package supervisor implements the connection supervisor: a
// single-threaded accept loop handing each connection to a worker
// goroutine, a shared live-socket registry, and global shutdown of every
// live connection on context cancellation.
//
// The worker-coordination pattern mirrors gokrazy/rsync's
// internal/receiver/do.go, which runs two concurrent goroutines per
// transfer under an errgroup.Group and waits for both before returning;
// here one errgroup.Group runs one goroutine per accepted connection for
// the lifetime of the server, and Serve blocks in eg.Wait() until every
// worker has drained after the listener is closed.
package supervisor

import (
	"context"
	"errors"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Whouaaass/rversions/internal/protocol"
	"github.com/Whouaaass/rversions/internal/wire"
)

// Supervisor owns the accept loop and the live-socket registry.
type Supervisor struct {
	Logger *logrus.Logger
	Server *protocol.Server

	reg *Registry
}

func New(logger *logrus.Logger, server *protocol.Server) *Supervisor {
	return &Supervisor{Logger: logger, Server: server, reg: NewRegistry()}
}

// Serve runs the accept loop on ln until ctx is cancelled or Accept fails.
// In either case it closes ln (unblocking Accept) and force-closes every
// live connection, then waits for all workers to unwind before returning.
func (sv *Supervisor) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-egCtx.Done()
		ln.Close()
		sv.reg.CloseAll()
		return nil
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-egCtx.Done():
				return eg.Wait()
			default:
				cancel()
				return errors.Join(err, eg.Wait())
			}
		}

		sv.reg.Add(conn)
		eg.Go(func() error {
			sv.handle(conn)
			return nil
		})
	}
}

// handle runs the greeting handshake and the per-connection dispatch loop
// for one accepted socket: the unit of concurrency this supervisor hands
// off to a worker goroutine. It never returns an error to the caller:
// per-connection failures are logged and simply end that connection.
func (sv *Supervisor) handle(conn net.Conn) {
	remote := conn.RemoteAddr()
	sv.Logger.Infof("client connected from %s", remote)
	defer func() {
		sv.reg.Remove(conn)
		conn.Close()
		sv.Logger.Infof("client %s disconnected", remote)
	}()

	c := wire.New(conn)
	if err := protocol.Greet(c); err != nil {
		sv.Logger.Warnf("greeting from %s failed: %v", remote, err)
		return
	}

	sess := &protocol.Session{}
	for {
		done, err := sv.Server.DispatchOne(c, sess)
		if err != nil {
			sv.Logger.Warnf("dispatch error from %s: %v", remote, err)
			return
		}
		if done {
			return
		}
	}
}
