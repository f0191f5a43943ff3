package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const appName = "mailcss"

// Logger builds the process logger from LOG_LEVEL (none, normal, debug) and
// LOG_FILE. Console output is split: errors go to stderr, everything else to
// stdout. The file log, when requested, always records at the console level
// or lower.
func (c Config) Logger() (*zap.Logger, error) {
	var level zapcore.Level
	switch c.LogLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "normal", "":
		level = zapcore.InfoLevel
	case "none":
		return zap.NewNop(), nil
	default:
		return nil, fmt.Errorf("unsupported LOG_LEVEL: %s", c.LogLevel)
	}

	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(ec)

	highPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	lowPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return level <= lvl && lvl < zapcore.ErrorLevel
	})

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), highPriority),
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), lowPriority),
	}

	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("unable to access file log destination (%s): %w", c.LogFile, err)
		}
		fileEncoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.Lock(f), zap.NewAtomicLevelAt(level)))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named(appName), nil
}
