// Package observability holds the process-wide loggers used by the CLI and
// the HTTP server.
//
// Library packages never reach for these globals; they take a *zap.Logger in
// their options. Commands pass CLILogger or ServerLogger down.
package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logging profiles.
const (
	// ProfileConsole renders human-readable lines.
	ProfileConsole = "console"

	// ProfileStructured renders one JSON object per line.
	ProfileStructured = "structured"
)

var (
	// CLILogger is used by commands. It writes to stderr so stdout stays
	// reserved for JSONL records.
	CLILogger = zap.NewNop()

	// ServerLogger is used by the HTTP server.
	ServerLogger = zap.NewNop()
)

// InitCLILogger configures CLILogger as a console logger on stderr. Verbose
// lowers the level to debug.
func InitCLILogger(service string, verbose bool) {
	level := "info"
	if verbose {
		level = "debug"
	}
	logger, err := NewLogger(os.Stderr, level, ProfileConsole)
	if err != nil {
		// Level and profile are fixed above; NewLogger cannot reject them.
		panic(err)
	}
	CLILogger = logger.Named(service)
}

// InitServerLogger configures ServerLogger from the logging config.
func InitServerLogger(service, level, profile string) error {
	logger, err := NewLogger(os.Stderr, level, profile)
	if err != nil {
		return err
	}
	ServerLogger = logger.Named(service).With(zap.String("service", service))
	return nil
}

// NewLogger builds a logger writing to w.
//
// Level is one of debug, info, warn, error (case-insensitive). Profile is
// console or structured; empty means console.
func NewLogger(w io.Writer, level, profile string) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(profile)) {
	case "", ProfileConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case ProfileStructured, "json":
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown logging profile %q (want %s or %s)", profile, ProfileConsole, ProfileStructured)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core), nil
}

// ParseLevel parses a logging level name. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid logging level %q", level)
	}
	return lvl, nil
}

// Sync flushes both loggers. Errors from syncing terminals are ignored.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
