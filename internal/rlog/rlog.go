// Package rlog wires up the process-wide structured logger. It plays the
// role gokr-rsync's internal/log.Logger interface plays there, except
// backed by logrus (the same library rcowham-gitp4transfer uses for its own
// long-running server process) instead of a bespoke interface.
package rlog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New builds a *logrus.Logger writing to w (os.Stderr in both binaries'
// main()) at the given level ("debug", "info", "warn", "error"). An
// unparseable level falls back to "info".
func New(w io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Discard returns a logger that drops everything, used by tests that don't
// want to assert on log output.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
