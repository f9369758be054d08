// Package clog is the narrow logging interface used by every other package
// in the engine, so call sites never import logrus directly and the backend
// can be swapped (e.g. for the unit test harness) without touching them.
package clog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the interface threaded through the coordination core. Log takes
// alternating key/value pairs, following the convention of the rest of the
// call sites (Log("rank", r, "signal", s, msg)); a trailing odd argument is
// treated as the message.
type Logger interface {
	Log(kv ...interface{})
	With(key string, val interface{}) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a Logger backed by logrus, writing to os.Stderr with the text
// formatter, matching the default of the rest of the example pack.
func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// NewAt returns a Logger at the given level ("debug", "info", "warn", "error").
func NewAt(level string) Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) With(key string, val interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, val)}
}

// Log writes a message. Arguments are taken as alternating key/value pairs;
// if the final argument is unpaired it is used as the message, otherwise
// the message is empty and only the fields are logged.
func (l *logrusLogger) Log(kv ...interface{}) {
	fields := logrus.Fields{}
	msg := ""
	n := len(kv)
	if n%2 == 1 {
		msg, _ = kv[n-1].(string)
		kv = kv[:n-1]
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		fields[key] = kv[i+1]
	}
	l.entry.WithFields(fields).Info(msg)
}

// Discard returns a Logger that drops everything, for tests that don't care.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
