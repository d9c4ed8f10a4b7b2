// Package mlog wraps log/slog with a per-package field and convenience
// functions for logging with an error.
//
// Variable data should be in attributes. Logging strings themselves should be
// constant, for easier log processing.
package mlog

import (
	"context"
	"log/slog"
	"os"
)

type key string

// CidKey can be used with context.WithValue to store a "cid" in a context, for logging.
var CidKey key = "cid"

// Log is the logger used everywhere. Each log invocation adds field "pkg".
type Log struct {
	*slog.Logger
}

// New returns a Log that adds field "pkg" to each logged line. If parent is
// nil, slog.Default() is used.
func New(pkg string, parent *slog.Logger) Log {
	if parent == nil {
		parent = slog.Default()
	}
	return Log{parent.With(slog.String("pkg", pkg))}
}

// WithCid adds a field "cid", for connecting all log lines of a request.
func (l Log) WithCid(cid int64) Log {
	return Log{l.Logger.With(slog.Int64("cid", cid))}
}

// WithContext adds cid from context, if present. Contexts are often passed to
// functions between packages, carrying a "cid" for an operation.
func (l Log) WithContext(ctx context.Context) Log {
	cidv := ctx.Value(CidKey)
	if cidv == nil {
		return l
	}
	cid := cidv.(int64)
	return l.WithCid(cid)
}

func (l Log) Errorx(msg string, err error, args ...any) {
	if err != nil {
		args = append([]any{slog.Any("err", err)}, args...)
	}
	l.Logger.Error(msg, args...)
}

func (l Log) Infox(msg string, err error, args ...any) {
	if err != nil {
		args = append([]any{slog.Any("err", err)}, args...)
	}
	l.Logger.Info(msg, args...)
}

func (l Log) Debugx(msg string, err error, args ...any) {
	if err != nil {
		args = append([]any{slog.Any("err", err)}, args...)
	}
	l.Logger.Debug(msg, args...)
}

// Check logs an error if err is not nil.
func (l Log) Check(err error, msg string, args ...any) {
	if err != nil {
		l.Errorx(msg, err, args...)
	}
}

// Fatalx logs the error and stops the program.
func (l Log) Fatalx(msg string, err error, args ...any) {
	l.Errorx(msg, err, args...)
	os.Exit(1)
}
