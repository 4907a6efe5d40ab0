// Package logging builds the process logger: human-readable text on the
// console plus JSON files under the logs directory.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	CombinedLog = "combined.log"
	ErrorLog    = "error.log"
)

type Options struct {
	Level   string    // debug, info, warn, error
	Dir     string    // logs directory; empty disables file output
	Console io.Writer // defaults to os.Stderr
}

// ParseLevel maps a level name onto slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger that writes text to the console, every record as JSON
// to combined.log, and error records as JSON to error.log. The returned close
// func flushes and closes the files.
func New(opts Options) (*slog.Logger, func() error, error) {
	lvl := ParseLevel(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: lvl}),
	}
	var files []*os.File
	closeAll := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Sync(), f.Close())
		}
		return errors.Join(errs...)
	}

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create logs dir: %w", err)
		}
		combined, err := openLog(filepath.Join(opts.Dir, CombinedLog))
		if err != nil {
			return nil, nil, err
		}
		files = append(files, combined)
		errLog, err := openLog(filepath.Join(opts.Dir, ErrorLog))
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		files = append(files, errLog)

		handlers = append(handlers,
			slog.NewJSONHandler(combined, &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}),
			slog.NewJSONHandler(errLog, &slog.HandlerOptions{Level: slog.LevelError, AddSource: true}),
		)
	}

	return slog.New(Fanout(handlers...)), closeAll, nil
}

func openLog(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// WithRun returns a logger with run_id attribute
func WithRun(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithStage returns a logger with stage attribute
func WithStage(logger *slog.Logger, stage string) *slog.Logger {
	return logger.With("stage", stage)
}

// SanitizeToken masks a token for safe logging.
// Shows first 4 and last 4 characters only.
func SanitizeToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

type fanout struct {
	handlers []slog.Handler
}

// Fanout sends each record to every handler enabled for its level.
func Fanout(handlers ...slog.Handler) slog.Handler {
	return &fanout{handlers: handlers}
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanout{handlers: hs}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &fanout{handlers: hs}
}
