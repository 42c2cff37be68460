// Package logging builds the slog.Logger used by the CLI and the server.
//
// Without a log file, server records below error go to stdout and errors go
// to stderr; the CLI keeps stdout for its narrative and logs to stderr only.
// With a file, everything goes to stderr and the file.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			_ = h.Handle(ctx, r.Clone())
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// below passes only records under max to h.
type below struct {
	max slog.Level
	h   slog.Handler
}

func (b below) Enabled(ctx context.Context, l slog.Level) bool {
	return l < b.max && b.h.Enabled(ctx, l)
}

func (b below) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= b.max {
		return nil
	}
	return b.h.Handle(ctx, r)
}

func (b below) WithAttrs(attrs []slog.Attr) slog.Handler {
	return below{max: b.max, h: b.h.WithAttrs(attrs)}
}

func (b below) WithGroup(name string) slog.Handler {
	return below{max: b.max, h: b.h.WithGroup(name)}
}

// Setup returns a logger plus any files the caller must close. Without a
// file, records below error go to stdout and errors to stderr.
func Setup(level, file string) (*slog.Logger, []io.Closer, error) {
	return setup(level, file, os.Stdout, os.Stderr)
}

// SetupStderr is Setup for commands whose stdout is their output: every
// record goes to stderr.
func SetupStderr(level, file string) (*slog.Logger, []io.Closer, error) {
	return setup(level, file, os.Stderr, os.Stderr)
}

func setup(level, file string, out, errOut io.Writer) (*slog.Logger, []io.Closer, error) {
	lvl := ParseLevel(level)
	if file == "" {
		return slog.New(fanout{
			below{max: slog.LevelError, h: slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})},
			slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelError}),
		}), nil, nil
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(fanout{
		slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: lvl}),
		slog.NewTextHandler(f, &slog.HandlerOptions{Level: lvl}),
	})
	return logger, []io.Closer{f}, nil
}

// Discard is a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
