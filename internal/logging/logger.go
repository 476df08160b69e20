// Package logging builds the zap loggers shared by the CLI, the HTTP server
// and the batch components.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kozaktomas/face-indexer/internal/config"
)

// Field keys shared across components so log queries stay consistent.
const (
	FieldBucket    = "bucket"
	FieldOutput    = "output"
	FieldContentID = "content_id"
	FieldFaceID    = "face_id"
	FieldArtifact  = "artifact"
	FieldBatch     = "batch"
	FieldRetries   = "retries"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string // "console" or "json"
}

// New constructs a zap logger using the provided options.
// Unknown levels fall back to info.
func New(opts Options) (*zap.Logger, error) {
	level := parseLevel(opts.Level)

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// NewFromConfig creates a logger using application config.
func NewFromConfig(cfg *config.Config) (*zap.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}
	format := "console"
	if cfg.Log.JSON {
		format = "json"
	}
	return New(Options{Level: cfg.Log.Level, Format: format})
}

func parseLevel(value string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(value)))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
