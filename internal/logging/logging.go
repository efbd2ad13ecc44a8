package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a level name to a zap level. "off" (and friends) reports
// ok=false with a nil error so callers can install a no-op logger.
func ParseLevel(raw string) (zapcore.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zapcore.InfoLevel, true, nil
	case "off", "none", "disabled", "disable":
		return zapcore.InfoLevel, false, nil
	case "warning":
		return zapcore.WarnLevel, true, nil
	}
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(raw))
	if err != nil {
		return zapcore.InfoLevel, false, fmt.Errorf("unknown log level %q", raw)
	}
	return lvl, true, nil
}

// New builds the process logger. Diagnostics go to stderr so status lines
// on stdout stay clean.
func New(level string) (*zap.Logger, error) {
	lvl, enabled, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return zap.NewNop(), nil
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.OutputPaths = []string{"stderr"}
	config.Sampling = nil
	if lvl > zapcore.DebugLevel {
		config.DisableCaller = true
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
