package bvfs

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// baseLogger is the package-wide logger that every session derives its
// per-session entry from. The only line a session writes is a Debug
// line when it is opened; block allocation, directory-chain walks and
// lock handling are not logged. By default only warnings and above are
// emitted; SetLogLevel changes that.
var baseLogger = logrus.New()

func init() {
	baseLogger.SetLevel(logrus.WarnLevel)
}

// SetLogLevel adjusts the verbosity of every BVFS session's logging.
func SetLogLevel(level logrus.Level) {
	baseLogger.SetLevel(level)
}

// sessionLogger returns a logger entry tagged with a session's
// correlation id, so log lines from concurrently open images can be
// told apart.
func sessionLogger(id uuid.UUID) *logrus.Entry {
	return baseLogger.WithField("session", id.String())
}
