// Package logrus adapts a *logrus.Entry to oliphant.Logger.
package logrus

import (
	"github.com/archivekc/oliphant"
	"github.com/sirupsen/logrus"
)

var _ oliphant.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l, tagging every entry with component=oliphant.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "oliphant")}
}

func (l Logger) Debug(msg string, f oliphant.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f oliphant.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f oliphant.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f oliphant.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f oliphant.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	return l.E.WithFields(logrus.Fields(f))
}
