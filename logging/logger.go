package logging

import (
	"github.com/sirupsen/logrus"
)

// DefaultLog provides a default implementation of the Logger interface.
type DefaultLog struct {
	entry *logrus.Entry
}

// Logger instances provide custom logging.
type Logger interface {

	// Log with level ERROR
	Error(...any)

	// Log formatted messages with level ERROR
	Errorf(string, ...any)

	// Log with level WARN
	Warn(...any)

	// Log formatted messages with level WARN
	Warnf(string, ...any)

	// Log with level INFO
	Info(...any)

	// Log formatted messages with level INFO
	Infof(string, ...any)

	// Log with level DEBUG
	Debug(...any)

	// Log formatted messages with level DEBUG
	Debugf(string, ...any)

	// WithFields returns a logger that adds fields to every entry.
	WithFields(map[string]any) Logger
}

func (dl *DefaultLog) Error(a ...any)            { dl.entry.Error(a...) }
func (dl *DefaultLog) Errorf(f string, a ...any) { dl.entry.Errorf(f, a...) }
func (dl *DefaultLog) Warn(a ...any)             { dl.entry.Warn(a...) }
func (dl *DefaultLog) Warnf(f string, a ...any)  { dl.entry.Warnf(f, a...) }
func (dl *DefaultLog) Info(a ...any)             { dl.entry.Info(a...) }
func (dl *DefaultLog) Infof(f string, a ...any)  { dl.entry.Infof(f, a...) }
func (dl *DefaultLog) Debug(a ...any)            { dl.entry.Debug(a...) }
func (dl *DefaultLog) Debugf(f string, a ...any) { dl.entry.Debugf(f, a...) }

func (dl *DefaultLog) WithFields(fields map[string]any) Logger {
	return &DefaultLog{entry: dl.entry.WithFields(fields)}
}

// New returns a logger writing to the standard logrus logger, configured
// by Init.
func New() *DefaultLog {
	return NewWith(logrus.StandardLogger())
}

// NewWith returns a logger writing to l.
func NewWith(l *logrus.Logger) *DefaultLog {
	return &DefaultLog{entry: logrus.NewEntry(l)}
}
