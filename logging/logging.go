// Package logging - zap loggers for the detection host.
package logging

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nvr-ai/go-mcdetect/config"
)

// NewEncoderConfig returns the encoder settings shared by every output.
func NewEncoderConfig(development bool) zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	if development {
		enc = zap.NewDevelopmentEncoderConfig()
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeDuration = zapcore.StringDurationEncoder
	return enc
}

// New builds a logger from the log settings.
//
// Development loggers write colored console output to stderr, production
// loggers write JSON. When File is set, JSON output also goes to a rotating
// file.
//
// Arguments:
//   - cfg: The log settings.
//
// Returns:
//   - *zap.Logger: The logger. Call Sync before exiting.
//   - error: An error if the level is unknown.
func New(cfg config.Log) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, errors.Wrapf(err, "log level %q", cfg.Level)
		}
	}

	var console zapcore.Encoder
	if cfg.Development {
		console = zapcore.NewConsoleEncoder(NewEncoderConfig(true))
	} else {
		console = zapcore.NewJSONEncoder(NewEncoderConfig(false))
	}
	cores := []zapcore.Core{
		zapcore.NewCore(console, zapcore.Lock(os.Stderr), level),
	}

	if cfg.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(NewEncoderConfig(false)),
			zapcore.AddSync(Rotator(cfg)),
			level,
		))
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

// Rotator returns the rotating file writer for cfg.File.
func Rotator(cfg config.Log) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}
