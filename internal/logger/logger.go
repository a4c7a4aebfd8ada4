// Package logger is the process-wide structured logger.
//
// Output goes through log/slog. The level comes from LOG_LEVEL at start-up
// and from the config file once Initialize runs. Warnings and errors can be
// sampled with ERROR_SAMPLE_RATE=N (log one in N); they are always counted.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

var levelsByName = map[string]slog.Level{
	"TRACE":   LevelTrace,
	"DEBUG":   LevelDebug,
	"INFO":    LevelInfo,
	"WARN":    LevelWarning,
	"WARNING": LevelWarning,
	"ERROR":   LevelError,
	"FATAL":   LevelFatal,
}

// Logger is the installed logger. Components that take a *slog.Logger
// default to it.
var Logger *slog.Logger

var (
	level      = new(slog.LevelVar)
	sampleRate atomic.Int32
	warnings   atomic.Int64
	errorCount atomic.Int64
)

// Config selects the handler installed by Initialize.
type Config struct {
	Level  string    // TRACE, DEBUG, INFO, WARN, ERROR, FATAL; empty keeps the current level
	Format string    // "json" (default) or "text"
	Output io.Writer // defaults to os.Stderr
}

func init() {
	level.Set(LevelInfo)
	if l, err := ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		level.Set(l)
	}

	sampleRate.Store(1)
	if n, err := strconv.Atoi(os.Getenv("ERROR_SAMPLE_RATE")); err == nil && n > 0 {
		sampleRate.Store(int32(n))
	}

	install(slog.NewJSONHandler(os.Stderr, handlerOptions()))
}

// Initialize replaces the package logger according to cfg.
func Initialize(cfg Config) error {
	if cfg.Level != "" {
		l, err := ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		level.Set(l)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(out, handlerOptions())
	case "text", "console":
		handler = slog.NewTextHandler(out, handlerOptions())
	default:
		return fmt.Errorf("unknown log format: %s (use json or text)", cfg.Format)
	}
	install(handler)
	return nil
}

func handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.LevelKey {
				return a
			}
			switch a.Value.Any() {
			case LevelTrace:
				a.Value = slog.StringValue("TRACE")
			case LevelFatal:
				a.Value = slog.StringValue("FATAL")
			}
			return a
		},
	}
}

func install(handler slog.Handler) {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// SetLevel sets the minimum level.
func SetLevel(l slog.Level) { level.Set(l) }

// GetLevel returns the minimum level.
func GetLevel() slog.Level { return level.Level() }

// ParseLevel converts a level name, in any case, to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	if l, ok := levelsByName[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return l, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %q", name)
}

// Totals is the number of warnings and errors reported since start-up,
// including sampled-out ones.
type Totals struct {
	Warnings int64
	Errors   int64
}

// Counts returns the warning and error totals.
func Counts() Totals {
	return Totals{Warnings: warnings.Load(), Errors: errorCount.Load()}
}

func sampled() bool {
	n := sampleRate.Load()
	return n <= 1 || rand.Int31n(n) == 0
}

func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn counts the warning and logs it subject to sampling.
func Warn(msg string, args ...any) {
	warnings.Add(1)
	if sampled() {
		Logger.Warn(msg, args...)
	}
}

// Error counts the error and logs it subject to sampling.
func Error(msg string, args ...any) {
	errorCount.Add(1)
	if sampled() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs and exits with status 1.
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}
