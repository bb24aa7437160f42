// Package logger builds the zap loggers used by the server and the client.
package logger

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrInvalidLogLevel is returned by Init for an unknown level name.
var ErrInvalidLogLevel = errors.New("invalid log level")

// Config selects the encoder and the sink.
type Config struct {
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Logger holds the process logger. Log is a no-op logger until Init succeeds.
type Logger struct {
	Log *zap.Logger
	cfg Config
}

// New returns a Logger writing JSON to stdout once initialized.
func New() *Logger {
	return &Logger{Log: zap.NewNop(), cfg: Config{Format: "json", Output: "stdout"}}
}

// NewWithConfig is New with a custom encoder and sink.
func NewWithConfig(cfg Config) *Logger {
	l := New()
	if cfg.Format != "" {
		l.cfg.Format = cfg.Format
	}
	if cfg.Output != "" {
		l.cfg.Output = cfg.Output
	}
	return l
}

// Init builds the zap logger at level and replaces Log.
func (l *Logger) Init(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var zcfg zap.Config
	if strings.ToLower(l.cfg.Format) == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)

	switch l.cfg.Output {
	case "", "stdout":
		zcfg.OutputPaths = []string{"stdout"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
	case "stderr":
		zcfg.OutputPaths = []string{"stderr"}
		zcfg.ErrorOutputPaths = []string{"stderr"}
	default:
		zcfg.OutputPaths = []string{l.cfg.Output}
		zcfg.ErrorOutputPaths = []string{l.cfg.Output}
	}

	zl, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	l.Log = zl
	return nil
}

// ParseLevel maps a level name to a zapcore.Level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("%w: %s", ErrInvalidLogLevel, level)
}
