package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	// Level is one of debug, info, warn, error
	Level string
	// ServiceName is attached to every record as "service"
	ServiceName string
	// Development switches to the human-readable console encoder
	Development bool
	// Output is stderr, stdout or a file path (default: stderr)
	Output string
}

// Logger wraps zap.Logger
type Logger struct {
	*zap.Logger
}

var (
	globalLogger *Logger
	mu           sync.RWMutex
)

// New builds a logger from the given configuration
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "timestamp"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	output := cfg.Output
	if output == "" {
		output = "stderr"
	}
	zcfg.OutputPaths = []string{output}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	zl, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	if cfg.ServiceName != "" {
		zl = zl.With(zap.String("service", cfg.ServiceName))
	}

	return &Logger{Logger: zl}, nil
}

// Init initializes the global logger
func Init(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	globalLogger = l
	mu.Unlock()

	return nil
}

// Get returns the global logger, falling back to a production logger on stderr
func Get() *Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		return l
	}

	zl, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return NewNop()
	}
	return &Logger{Logger: zl}
}

// Sync flushes the global logger
func Sync() {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l != nil {
		_ = l.Logger.Sync()
	}
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With returns a child logger with the given fields attached
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named returns a child logger scoped to a component
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}
