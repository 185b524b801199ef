package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "CONSOLE"
	FormatJSON    = "JSON"
)

var (
	once  sync.Once
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// ParseLevel converts LOGGING_LEVEL values. PRODUCTION and unknown values map to info.
func ParseLevel(raw string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05 MST"))
}

// New builds a logger writing to stdout at the shared atomic level.
func New(format string) *zap.Logger {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "component",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if strings.ToUpper(format) == FormatJSON {
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncodeTime = timeEncoder
		cfg.ConsoleSeparator = " | "
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	return zap.New(core, zap.AddCaller())
}

// Initialize sets up the global logger from LOGGING_LEVEL and LOGGING_FORMAT.
// Only the first call has an effect.
func Initialize() {
	once.Do(func() {
		level.SetLevel(ParseLevel(os.Getenv("LOGGING_LEVEL")))
		format := os.Getenv("LOGGING_FORMAT")
		if format == "" {
			format = FormatConsole
		}
		logger := New(format)
		zap.ReplaceGlobals(logger)
		logger.Info("Logger initialized", zap.String("level", level.String()), zap.String("format", format))
	})
}

// SetLevel changes the level of every logger created by this package.
func SetLevel(raw string) {
	level.SetLevel(ParseLevel(raw))
}

// For returns a logger named after a component.
func For(component string) *zap.SugaredLogger {
	return zap.S().Named(component)
}

func Sync() error {
	return zap.L().Sync()
}
