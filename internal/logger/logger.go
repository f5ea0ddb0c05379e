package logger

import (
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "console", Output: "stdout"}
}

func ProductionConfig() Config {
	return Config{Level: "info", Format: "json", Output: "stdout"}
}

// New builds a zap logger writing to cfg.Output.
func New(cfg Config) *zap.Logger {
	return NewWithWriter(cfg, createWriter(cfg.Output))
}

// NewWithWriter is New with an explicit sink; tests pass a buffer.
func NewWithWriter(cfg Config, w io.Writer) *zap.Logger {
	core := zapcore.NewCore(createEncoder(cfg.Format), zapcore.AddSync(w), parseLevel(cfg.Level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// NewForEnvironment picks the JSON encoder in production and console otherwise.
// An explicit level overrides the environment default.
func NewForEnvironment(env string, level string) *zap.Logger {
	cfg := DefaultConfig()
	if env == "production" {
		cfg = ProductionConfig()
	}
	if level != "" {
		cfg.Level = level
	}
	return New(cfg)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func createEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func createWriter(output string) io.Writer {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return os.Stdout
		}
		return file
	}
}
