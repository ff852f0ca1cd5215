// Package logger provides process-wide named zap loggers.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

type Config struct {
	Level       string `env:"LEVEL" envDefault:"info"`
	Development bool   `env:"DEVELOPMENT" envDefault:"false"`
}

// Logger is a named sugared logger.
type Logger struct {
	*zap.SugaredLogger
}

var (
	mu   sync.RWMutex
	root = mustBuild(Config{Level: "info"})
)

// Init replaces the root logger. Loggers obtained before Init keep the old core.
func Init(conf Config) error {
	l, err := build(conf)
	if err != nil {
		return err
	}
	mu.Lock()
	root = l
	mu.Unlock()
	return nil
}

// Root returns the unnamed root logger.
func Root() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{SugaredLogger: root.Sugar()}
}

func MustNamed(name string) *Logger {
	if name == "" {
		panic("logger name must not be empty")
	}
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{SugaredLogger: root.Named(name).Sugar()}
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Unwrap() *zap.SugaredLogger {
	return l.SugaredLogger
}

func (l *Logger) Logw(level Level, msg string, keysAndValues ...any) {
	l.SugaredLogger.Logw(level, msg, keysAndValues...)
}

func build(conf Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(conf.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", conf.Level, err)
	}

	zc := zap.NewProductionConfig()
	if conf.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = !conf.Development

	return zc.Build()
}

func mustBuild(conf Config) *zap.Logger {
	l, err := build(conf)
	if err != nil {
		panic(err)
	}
	return l
}
