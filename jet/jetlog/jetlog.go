// Package jetlog is the thin logging seam every other package logs
// through: a *logrus.Logger carried on a config/context struct rather
// than a package-level global, so two Database instances in the same
// process never share (or fight over) log state.
package jetlog

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the interface the rest of the engine depends on. It is
// satisfied by *logrus.Logger and by *logrus.Entry, so a call site can
// attach fields (WithField) without the caller needing to know which one
// it got back.
type Logger interface {
	logrus.FieldLogger
}

// New returns a logrus.Logger with a full-timestamp text formatter and
// the level driven by an explicit parameter rather than an environment
// variable.
func New(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return l
}

// Discard returns a logger that drops everything, for tests and for
// callers that pass a nil Config.Logger.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// WithPage returns a logger with a "page" field set, the idiom used in
// jet/page, jet/usagemap, and jet/cursor to tag a log line with the
// page number that produced it.
func WithPage(l Logger, pageNumber uint32) *logrus.Entry {
	return l.WithField("page", pageNumber)
}

// WithTable returns a logger with a "table" field set.
func WithTable(l Logger, name string) *logrus.Entry {
	return l.WithField("table", name)
}
