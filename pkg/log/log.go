// Package log builds the process logger and keeps the global one that
// commands hand down to layers and indexes.
package log

import (
	"os"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// New builds a logger writing to stderr. Development loggers use the console
// encoder and add caller and stack information.
func New(level string, development bool) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "log level %q", level)
	}
	return NewWithWriteSyncer(lvl, development, zapcore.Lock(os.Stderr)), nil
}

func NewWithWriteSyncer(lvl zap.AtomicLevel, development bool, out zapcore.WriteSyncer) *zap.Logger {
	var (
		encoder zapcore.Encoder
		opts    []zap.Option
	)
	if development {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encCfg)
		opts = append(opts, zap.Development(), zap.AddCaller(), zap.AddStacktrace(zapcore.WarnLevel))
	} else {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewCore(encoder, out, lvl), opts...)
}

// L returns the global logger. It is a no-op logger until ReplaceGlobals.
func L() *zap.Logger {
	return global.Load()
}

func ReplaceGlobals(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	global.Store(logger)
}

func Sync() error {
	return L().Sync()
}
