// Package log provides leveled, structured logging on top of log/slog,
// matching the key=value terminal format the rest of the ecosystem uses.
package log

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Level mirrors slog.Level but with the six levels the rest of the
// codebase logs at.
type Level = slog.Level

const (
	LevelTrace Level = slog.Level(-8)
	LevelDebug Level = slog.LevelDebug
	LevelInfo  Level = slog.LevelInfo
	LevelWarn  Level = slog.LevelWarn
	LevelError Level = slog.LevelError
	LevelCrit  Level = slog.Level(12)
)

var levelNames = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelCrit:  "CRIT",
}

// Logger is the structured, leveled logging interface used throughout the
// module. New(ctx ...any) returns a child logger with ctx merged into
// every subsequent record, the way the teacher's own log package scopes a
// logger to a module ("module", "p2p") or a peer ("id", peer.ID()).
type Logger interface {
	New(ctx ...any) Logger

	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any) // Crit logs and then os.Exit(1)

	Enabled(level Level) bool
}

type logger struct {
	inner *slog.Logger
}

// New creates a Logger on top of handler.
func New(handler slog.Handler) Logger {
	return &logger{inner: slog.New(handler)}
}

// Root is the default, package-level logger; SetDefault replaces it.
var Root Logger = New(NewTerminalHandler(os.Stderr, false))

// SetDefault replaces the package-level Root logger.
func SetDefault(l Logger) { Root = l }

func (l *logger) New(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

func (l *logger) Enabled(level Level) bool {
	return l.inner.Enabled(context.Background(), level)
}

func (l *logger) write(level Level, msg string, ctx ...any) {
	l.inner.Log(context.Background(), level, msg, ctx...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.write(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.write(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.write(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.write(LevelError, msg, ctx...) }
func (l *logger) Crit(msg string, ctx ...any) {
	l.write(LevelCrit, msg, ctx...)
	os.Exit(1)
}

// Package-level convenience wrappers over Root, matching the teacher's
// habit of calling log.Info(...) directly from call sites that don't hold
// their own scoped logger.
func Trace(msg string, ctx ...any) { Root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...any) { Root.Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { Root.Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { Root.Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { Root.Error(msg, ctx...) }
func Crit(msg string, ctx ...any)  { Root.Crit(msg, ctx...) }

// nowFunc is time.Now. Nothing in this package reads it; record
// timestamps come from slog.
var nowFunc = time.Now
