package internal

import (
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// LogLevel is the minimum level of every logger created by [NewLogger].
// It can be changed at runtime, for example by the command line.
var LogLevel = new(slog.LevelVar)

type Logger struct {
	*slog.Logger

	kind string
	name string
}

// NewLogger returns a logger writing to stderr.
// Each record carries an info group with the kind and the name of the component.
func NewLogger(kind, name string) *Logger {
	var handler slog.Handler

	if runtime.GOOS == "windows" {
		w := colorable.NewColorableStdout()
		handler = tint.NewHandler(w, &tint.Options{Level: LogLevel})
	} else {
		w := os.Stderr
		handler = tint.NewHandler(w, &tint.Options{
			Level:   LogLevel,
			NoColor: !isatty.IsTerminal(w.Fd()),
		})
	}

	return newLogger(handler, kind, name)
}

// NewWriterLogger returns a logger without colors writing to w.
func NewWriterLogger(w io.Writer, kind, name string) *Logger {
	return newLogger(tint.NewHandler(w, &tint.Options{Level: LogLevel, NoColor: true}), kind, name)
}

func newLogger(handler slog.Handler, kind, name string) *Logger {
	return &Logger{
		Logger: slog.New(handler),

		kind: kind,
		name: name,
	}
}

func (l *Logger) getInfo() slog.Attr {
	return slog.Group("info", slog.String("kind", l.kind), slog.String("name", l.name))
}

func (l *Logger) getArgs(args ...any) []any {
	return append([]any{l.getInfo()}, args...)
}

func (l *Logger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, l.getArgs(args...)...)
}

func (l *Logger) Info(msg string, args ...any) {
	l.Logger.Info(msg, l.getArgs(args...)...)
}

func (l *Logger) Error(msg string, err error, args ...any) {
	tmpArgs := append([]any{tint.Err(err)}, args...)
	l.Logger.Error(msg, l.getArgs(tmpArgs...)...)
}

func (l *Logger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, l.getArgs(args...)...)
}
