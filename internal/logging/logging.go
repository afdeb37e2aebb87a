// Package logging holds the process-wide logrus logger used by every echobench component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var defaultLog = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	return log
}

// Logger exposes the shared logger for components that need fields.
func Logger() *logrus.Logger {
	return defaultLog
}

// SetOutput redirects log output. Machine-readable reports stay on stdout, so logs default to stderr.
func SetOutput(w io.Writer) {
	defaultLog.SetOutput(w)
}

// SetDebug switches to DEBUG level.
func SetDebug() {
	defaultLog.SetLevel(logrus.DebugLevel)
}

// SetLevel parses a level name ("debug", "info", "warn", "error"). An empty name keeps the current level.
func SetLevel(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return err
	}
	defaultLog.SetLevel(level)
	return nil
}

// WithField returns an entry carrying one structured field.
func WithField(key string, value interface{}) *logrus.Entry {
	return defaultLog.WithField(key, value)
}

// WithFields returns an entry carrying structured fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return defaultLog.WithFields(fields)
}

func Debugf(format string, args ...interface{}) {
	defaultLog.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	defaultLog.Infof(format, args...)
}

func Warnf(format string, args ...interface{}) {
	defaultLog.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	defaultLog.Errorf(format, args...)
}
