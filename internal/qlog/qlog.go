// Package qlog is this program's logging seam. It wraps log/slog: a small
// set of package-level functions that CLI commands and state machines
// call directly, with a package-level channel variable a test can set to
// observe output instead of scraping stderr.
package qlog

import (
	"context"
	"log/slog"
	"os"
)

// TestChannel, when non-nil, receives the message text of every log call,
// in addition to it being handed to the underlying logger.
var TestChannel chan string

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// SetLevel reconfigures the minimum level logged, driven by the
// -l/--log-level CLI flag.
func SetLevel(level slog.Level) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func emit(ctx context.Context, level slog.Level, msg string, args ...any) {
	if TestChannel != nil {
		TestChannel <- msg
	}
	logger.Log(ctx, level, msg, args...)
}

func Debug(msg string, args ...any) { emit(context.Background(), slog.LevelDebug, msg, args...) }
func Info(msg string, args ...any)  { emit(context.Background(), slog.LevelInfo, msg, args...) }
func Warn(msg string, args ...any)  { emit(context.Background(), slog.LevelWarn, msg, args...) }
func Error(msg string, args ...any) { emit(context.Background(), slog.LevelError, msg, args...) }

// ParseLevel maps the CLI's -l/--log-level strings onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return l, nil
}
