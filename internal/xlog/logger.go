// Package xlog provides the structured, category-tagged logging used across
// cdpgo's components (wire, session, supervisor, intercept, browser, ...).
package xlog

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry pre-tagged with a component category.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to out at debug or info level, tagged with
// category. Category is attached as a structured field, not a string prefix,
// so downstream formatters/aggregators can filter on it.
func New(out io.Writer, debug bool, category string) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&consoleLogFormatter{&logrus.TextFormatter{FullTimestamp: true}})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return &Logger{entry: logrus.NewEntry(l).WithField("category", category)}
}

// Null returns a Logger that discards everything, for tests that don't
// assert on log content.
func Null() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{entry: logrus.NewEntry(l)}
}

// WithCategory returns a derived Logger tagged with a sub-category, e.g.
// the session package tagging a child logger per target id.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{entry: l.entry.WithField("category", category)}
}

// WithField returns a derived Logger carrying one extra structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// consoleLogFormatter wraps another formatter and, when the entry carries an
// "objects" field (a []interface{} of loggable values), JSON-marshals each
// value, uses them joined by spaces as the entry's message, and formats the
// entry with the wrapped formatter. Values that fail to marshal are skipped
// rather than aborting the whole line.
type consoleLogFormatter struct {
	logrus.Formatter
}

func (f *consoleLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	objects, ok := entry.Data["objects"].([]interface{})
	if !ok || len(objects) == 0 {
		return f.Formatter.Format(entry)
	}

	var parts [][]byte
	for _, obj := range objects {
		b, err := json.Marshal(obj)
		if err != nil {
			continue
		}
		parts = append(parts, b)
	}
	entry.Message = string(bytes.Join(parts, []byte(" ")))
	return f.Formatter.Format(entry)
}
