package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger for the given environment.
// prod uses JSON output, local/dev/docker use colored console output, test discards everything.
// levelOverride (if non-empty) overrides the log level: debug, info, warn, error.
func NewLogger(env string, levelOverride ...string) (*zap.Logger, error) {
	var cfg zap.Config
	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
	case "local", "dev", "docker":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "test":
		return zap.NewNop(), nil
	default:
		return nil, fmt.Errorf("unknown environment %q for logger", env)
	}

	if len(levelOverride) > 0 && levelOverride[0] != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(levelOverride[0])); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", levelOverride[0], err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	l, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}

// NewCLILogger builds a console logger on stderr for one-shot commands.
func NewCLILogger(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return l, nil
}
