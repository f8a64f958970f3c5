// Package logger provides structured logging for syncflow
package logger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
	mu           sync.RWMutex
)

// contextKey is the type for context keys
type contextKey string

const (
	// SyncIDKey is the context key for the sync id
	SyncIDKey contextKey = "sync_id"
	// SyncRunIDKey is the context key for the sync run id
	SyncRunIDKey contextKey = "sync_run_id"
	// ConnectorKey is the context key for connector name
	ConnectorKey contextKey = "connector"
)

// Config represents logger configuration
type Config struct {
	Level       string   `yaml:"level" json:"level" mapstructure:"level"`
	Development bool     `yaml:"development" json:"development" mapstructure:"development"`
	Encoding    string   `yaml:"encoding" json:"encoding" mapstructure:"encoding"` // json or console
	OutputPaths []string `yaml:"output_paths" json:"output_paths" mapstructure:"output_paths"`
}

// DefaultConfig returns the configuration used when none is supplied
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Encoding: "json",
	}
}

// Init initializes the global logger
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		var l *zap.Logger
		l, err = New(cfg)
		if err == nil {
			mu.Lock()
			globalLogger = l
			mu.Unlock()
		}
	})
	return err
}

// New creates a zap logger from cfg. Components receive the result through
// their constructors instead of reaching for the global logger.
func New(cfg Config) (*zap.Logger, error) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "json"
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         cfg.Encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.Development {
		logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return logger, nil
}

// Get returns the global logger
func Get() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	if err := Init(DefaultConfig()); err != nil {
		// Fallback to basic logger
		fallback, _ := zap.NewProduction()
		mu.Lock()
		globalLogger = fallback
		mu.Unlock()
	}

	mu.RLock()
	defer mu.RUnlock()
	if globalLogger == nil {
		return zap.NewNop()
	}
	return globalLogger
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// WithContext returns l enriched with the ids carried by ctx
func WithContext(ctx context.Context, l *zap.Logger) *zap.Logger {
	l = OrNop(l)

	if syncID, ok := ctx.Value(SyncIDKey).(string); ok {
		l = l.With(zap.String("sync_id", syncID))
	}

	if runID, ok := ctx.Value(SyncRunIDKey).(string); ok {
		l = l.With(zap.String("sync_run_id", runID))
	}

	if connector, ok := ctx.Value(ConnectorKey).(string); ok {
		l = l.With(zap.String("connector", connector))
	}

	return l
}

// Sync flushes any buffered log entries
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
