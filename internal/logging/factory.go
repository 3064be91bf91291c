package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects backend, level, format and destination of the process logger.
type Options struct {
	Level   string // debug, info, warn, error
	Format  string // json, text, auto
	Backend string // slog, zap
	File    string // rotated log file; stdout when empty
}

// isTerminal is a seam for tests.
var isTerminal = func(fd int) bool { return term.IsTerminal(fd) }

// New builds a Logger from opts. The returned closer flushes and releases the
// underlying writer and must be called on shutdown.
func New(opts Options) (Logger, func() error, error) {
	var w io.Writer = os.Stdout
	closer := func() error { return nil }
	text := false

	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		w = lj
		closer = lj.Close
	}

	switch strings.ToLower(opts.Format) {
	case "", "json":
	case "text":
		text = true
	case "auto":
		text = opts.File == "" && isTerminal(int(os.Stdout.Fd()))
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	switch strings.ToLower(opts.Backend) {
	case "", "slog":
		level, err := slogLevel(opts.Level)
		if err != nil {
			return nil, nil, err
		}
		return NewSlogLogger(slog.New(newSlogHandler(w, text, level))), closer, nil
	case "zap":
		level, err := zapcore.ParseLevel(defaultLevel(opts.Level))
		if err != nil {
			return nil, nil, fmt.Errorf("unknown log level %q: %w", opts.Level, err)
		}
		zl := zap.New(zapcore.NewCore(newZapEncoder(text), zapcore.AddSync(w), level))
		zapLogger := NewZapLogger(zl.Sugar())
		return zapLogger, func() error {
			_ = zapLogger.Sync()
			return closer()
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", opts.Backend)
	}
}

func defaultLevel(level string) string {
	if level == "" {
		return "info"
	}
	return strings.ToLower(level)
}

func slogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(defaultLevel(level))); err != nil {
		return l, fmt.Errorf("unknown log level %q: %w", level, err)
	}
	return l, nil
}

func newSlogHandler(w io.Writer, text bool, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if text {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func newZapEncoder(text bool) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if text {
		return zapcore.NewConsoleEncoder(cfg)
	}
	return zapcore.NewJSONEncoder(cfg)
}
