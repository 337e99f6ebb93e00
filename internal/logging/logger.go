// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a logger from cfg. Verbose forces debug level regardless of
// the configured level.
func New(cfg Config, verbose bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	writer, err := buildWriter(cfg)
	if err != nil {
		return nil, err
	}

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(cfg.buildEncoderConfig())
	} else {
		encoder = zapcore.NewConsoleEncoder(cfg.buildEncoderConfig())
	}

	core := zapcore.NewCore(encoder, writer, level)
	if cfg.Sampling.Enabled {
		core = zapcore.NewSamplerWithOptions(
			core,
			time.Second,
			cfg.Sampling.Initial,
			cfg.Sampling.Thereafter,
		)
	}

	return zap.New(core, buildOptions(cfg)...), nil
}

func buildWriter(cfg Config) (zapcore.WriteSyncer, error) {
	switch cfg.OutputPath {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.OutputPath,
		MaxSize:    cfg.Rotation.MaxSize,
		MaxBackups: cfg.Rotation.MaxBackups,
		MaxAge:     cfg.Rotation.MaxAge,
		Compress:   cfg.Rotation.Compress,
	})
	if cfg.Development {
		return zapcore.NewMultiWriteSyncer(fileWriter, zapcore.Lock(os.Stdout)), nil
	}
	return fileWriter, nil
}

func buildOptions(cfg Config) []zap.Option {
	options := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if cfg.Development {
		options = append(options, zap.Development())
	}
	if hostname, err := os.Hostname(); err == nil {
		options = append(options, zap.Fields(zap.String("host", hostname)))
	}
	return options
}

// WithComponent adds component context.
func WithComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.Named(component)
}

// WithPlug adds the device address and outlet being driven.
func WithPlug(logger *zap.Logger, address string, outlet int) *zap.Logger {
	return logger.With(
		zap.String("address", address),
		zap.Int("outlet", outlet),
	)
}

// LogIf logs only if error is not nil.
func LogIf(logger *zap.Logger, err error, msg string, fields ...zap.Field) {
	if err != nil {
		logger.Error(msg, append(fields, zap.Error(err))...)
	}
}
