// Package rlog is a small leveled logger in the shape used throughout the
// go-ethereum family of consensus engines this module is descended from:
// a New(ctx...) constructor that binds context key/values to a Logger, and
// Trace/Debug/Info/Warn/Error methods that take alternating key/value pairs.
package rlog

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
)

// Level is a log severity, ordered from most to least verbose.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRCE"
	case LevelDebug:
		return "DBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "EROR"
	default:
		return "????"
	}
}

// Logger is the interface every rspow component logs through.
type Logger interface {
	New(ctx ...interface{}) Logger
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
}

var (
	rootMu sync.Mutex
	root   Logger = newLogger(defaultHandler(), nil)
)

// Root returns the package-wide default logger.
func Root() Logger {
	rootMu.Lock()
	defer rootMu.Unlock()
	return root
}

// SetRoot replaces the package-wide default logger, e.g. to redirect to a
// test buffer or raise the minimum level.
func SetRoot(l Logger) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// New creates a standalone logger with the given bound context, independent
// of the package root.
func New(ctx ...interface{}) Logger {
	return newLogger(defaultHandler(), ctx)
}

func defaultHandler() *termHandler {
	return &termHandler{
		out:     colorable.NewColorableStdout(),
		minimum: LevelInfo,
	}
}

type logger struct {
	h   *termHandler
	ctx []interface{}
}

func newLogger(h *termHandler, ctx []interface{}) *logger {
	return &logger{h: h, ctx: ctx}
}

func (l *logger) New(ctx ...interface{}) Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return newLogger(l.h, merged)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LevelTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LevelError, msg, ctx) }

func (l *logger) write(lvl Level, msg string, ctx []interface{}) {
	all := make([]interface{}, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, ctx...)
	l.h.handle(lvl, msg, all)
}

// termHandler renders records as colorized single lines, matching the
// compact "LVL[time] msg key=val ..." shape consensus engines in this
// dependency family print to a terminal.
type termHandler struct {
	mu      sync.Mutex
	out     io.Writer
	minimum Level
}

var levelColor = map[Level]*color.Color{
	LevelTrace: color.New(color.FgHiBlack),
	LevelDebug: color.New(color.FgBlue),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
}

func (h *termHandler) handle(lvl Level, msg string, ctx []interface{}) {
	if lvl < h.minimum {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	c := levelColor[lvl]
	prefix := c.Sprintf("%-5s", lvl.String())
	ts := time.Now().Format("01-02|15:04:05.000")

	line := fmt.Sprintf("%s[%s] %s", prefix, ts, msg)
	for i := 0; i+1 < len(ctx); i += 2 {
		line += fmt.Sprintf(" %v=%v", ctx[i], ctx[i+1])
	}
	if lvl >= LevelWarn {
		if call := stack.Caller(3); call.Frame().Function != "" {
			line += fmt.Sprintf(" caller=%+v", call)
		}
	}
	fmt.Fprintln(h.out, line)
}

// Discard returns a Logger that drops every record; useful in tests that
// want the production call sites exercised without terminal noise.
func Discard() Logger {
	return newLogger(&termHandler{out: io.Discard, minimum: LevelError + 1}, nil)
}
