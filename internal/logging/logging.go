// Package logging configures the process logger and carries request-scoped
// entries through context.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds a logrus logger. format is "json" or "text"; unknown levels fall back to info.
func New(level, format string) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, format)
}

func NewWithOutput(out io.Writer, level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying e.
func WithContext(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKey{}, e)
}

// FromContext returns the entry stored by WithContext, or nil.
func FromContext(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(ctxKey{}).(*logrus.Entry); ok {
		return e
	}
	return nil
}

// Component returns the context entry (or base) tagged with a component field.
func Component(ctx context.Context, base *logrus.Entry, name string) *logrus.Entry {
	e := FromContext(ctx)
	if e == nil {
		e = base
	}
	if e == nil {
		e = logrus.NewEntry(logrus.StandardLogger())
	}
	return e.WithField("component", name)
}
