package logging

import (
	"go.uber.org/zap/zapcore"
)

// Config defines all settings for logging.
type Config struct {
	// Level is the minimum log level that will be captured.
	Level string `yaml:"level"`

	// Format specifies the log output format. Can be "json" or "console".
	Format string `yaml:"format"`

	// OutputPath is the destination for log output: "stdout", "stderr" or a
	// file path. Files are rotated.
	OutputPath string `yaml:"output_path"`

	// Rotation defines the configuration for log file rotation.
	Rotation RotationConfig `yaml:"rotation"`

	// Development enables colored console output and caller paths.
	Development bool `yaml:"development"`

	// Sampling throttles repeated messages. Useful with short poll intervals.
	Sampling SamplingConfig `yaml:"sampling"`
}

// RotationConfig defines the settings for log file rotation.
type RotationConfig struct {
	MaxSize    int  `yaml:"max_size_mb"`
	MaxAge     int  `yaml:"max_age_days"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

// SamplingConfig defines the settings for log sampling.
type SamplingConfig struct {
	Enabled    bool `yaml:"enabled"`
	Initial    int  `yaml:"initial"`
	Thereafter int  `yaml:"thereafter"`
}

// DefaultConfig returns a new Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		OutputPath: "stdout",
		Rotation: RotationConfig{
			MaxSize:    10,
			MaxAge:     30,
			MaxBackups: 5,
			Compress:   true,
		},
		Sampling: SamplingConfig{
			Enabled:    false,
			Initial:    100,
			Thereafter: 100,
		},
	}
}

func (c Config) buildEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if c.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderConfig.EncodeCaller = zapcore.FullCallerEncoder
	}

	return encoderConfig
}
