// Package logging builds the zap logger shared by every vuramp component.
package logging

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const baseConfig = `{
  "level": %q,
  "encoding": %q,
  "outputPaths": %s,
  "errorOutputPaths": ["stderr"],
  "encoderConfig": {
    "messageKey": "message",
    "levelKey": "level",
    "levelEncoder": "uppercase",
    "timeKey": "time",
    "timeEncoder": "ISO8601",
    "callerKey": "caller",
    "callerEncoder": "short"
  }
}`

// New returns a sugared logger writing to stderr. level is a zap level name
// and format is "console" or "json".
func New(level, format string) (*zap.SugaredLogger, error) {
	return build(level, format, []string{"stderr"})
}

func build(level, format string, outputPaths []string) (*zap.SugaredLogger, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		level = "info"
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "console"
	}
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	paths, err := jsoniter.Marshal(outputPaths)
	if err != nil {
		return nil, err
	}
	rawJSON := []byte(fmt.Sprintf(baseConfig, level, format, paths))

	var cfg zap.Config
	if err := jsoniter.Unmarshal(rawJSON, &cfg); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if format == "console" {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
