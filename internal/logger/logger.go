package logger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bizcore/bizcore/internal/config"
)

// Logger wraps zap.SugaredLogger to provide logging functionality
type Logger struct {
	*zap.SugaredLogger
}

// Global logger for convenience in scripts and tests; everywhere else prefer
// the injected instance.
var L *Logger

func init() {
	L, _ = NewDefaultLogger()
}

// Module provides the logger to the fx application
func Module() fx.Option {
	return fx.Provide(NewLogger)
}

// NewLogger creates a logger configured from the application configuration
func NewLogger(cfg *config.Configuration) (*Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg != nil {
		level, err := zapcore.ParseLevel(string(cfg.Logging.Level))
		if err == nil {
			zapCfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

// NewDefaultLogger creates a logger with default settings, independent of config
func NewDefaultLogger() (*Logger, error) {
	return NewLogger(nil)
}

// GetLogger returns the global logger, initializing it if needed
func GetLogger() *Logger {
	if L == nil {
		L, _ = NewDefaultLogger()
	}
	return L
}
