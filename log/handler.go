package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-stack/stack"
)

// terminalHandler renders records as "LVL [timestamp] message key=value ..."
// lines, the format the teacher's terminal output uses, with the key=value
// pairs sorted. The color flag is stored but the output is never
// colourized, and columns are not aligned.
type terminalHandler struct {
	mu     sync.Mutex
	wr     io.Writer
	level  Level
	color  bool
	attrs  []slog.Attr
	frames bool
}

// NewTerminalHandler returns a handler that logs at LevelInfo and above.
func NewTerminalHandler(wr io.Writer, useColor bool) slog.Handler {
	return NewTerminalHandlerWithLevel(wr, LevelInfo, useColor)
}

// NewTerminalHandlerWithLevel returns a handler that logs at or above level.
func NewTerminalHandlerWithLevel(wr io.Writer, level Level, useColor bool) slog.Handler {
	return &terminalHandler{wr: wr, level: level, color: useColor}
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(levelNames[r.Level])
	sb.WriteString(" [")
	sb.WriteString(r.Time.Format("01-02|15:04:05.000"))
	sb.WriteString("] ")
	sb.WriteString(r.Message)

	pairs := make([]string, 0, len(h.attrs)+r.NumAttrs()+1)
	if r.Level >= LevelError {
		if frame := callerFrame(5); frame != "" {
			pairs = append(pairs, "caller="+frame)
		}
	}
	for _, a := range h.attrs {
		pairs = append(pairs, formatAttr(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		pairs = append(pairs, formatAttr(a))
		return true
	})
	sort.Strings(pairs)
	for _, p := range pairs {
		sb.WriteByte(' ')
		sb.WriteString(p)
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.wr, sb.String())
	return err
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := &terminalHandler{wr: h.wr, level: h.level, color: h.color}
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return n
}

func (h *terminalHandler) WithGroup(name string) slog.Handler { return h }

func formatAttr(a slog.Attr) string {
	v := a.Value.Resolve()
	var s string
	switch v.Kind() {
	case slog.KindString:
		str := v.String()
		if strings.ContainsAny(str, " \t\"=") {
			s = strconv.Quote(str)
		} else {
			s = str
		}
	default:
		s = fmt.Sprint(v.Any())
	}
	return a.Key + "=" + s
}

// LogfmtHandler returns a handler that writes plain logfmt key=value lines
// with no colour and no column alignment — used when output is not a
// terminal (piped to a file, journald, etc.).
func LogfmtHandler(wr io.Writer) slog.Handler {
	return NewTerminalHandlerWithLevel(wr, LevelTrace, false)
}

// JSONHandler returns a handler that writes one JSON object per record at
// trace level and above.
func JSONHandler(wr io.Writer) slog.Handler {
	return JSONHandlerWithLevel(wr, LevelTrace)
}

// JSONHandlerWithLevel returns a JSON handler filtering below level.
func JSONHandlerWithLevel(wr io.Writer, level Level) slog.Handler {
	return slog.NewJSONHandler(wr, &slog.HandlerOptions{Level: level})
}

// callerFrame returns the immediate caller's file:line, used by handlers
// that want to attribute a record to a source location the way the
// teacher's glog-style vmodule filtering does.
func callerFrame(skip int) string {
	c := stack.Caller(skip + 1)
	return fmt.Sprintf("%+v", c)
}
