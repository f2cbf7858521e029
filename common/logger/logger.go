package logger

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultLevelDebug = 0
	DefaultLevelInfo  = 1
	DefaultLevelWarn  = 2
	DefaultLevelError = 3
	DefaultLevelFatal = 4
)

var levelMap = map[int]zapcore.Level{
	DefaultLevelDebug: zapcore.DebugLevel,
	DefaultLevelInfo:  zapcore.InfoLevel,
	DefaultLevelWarn:  zapcore.WarnLevel,
	DefaultLevelError: zapcore.ErrorLevel,
	DefaultLevelFatal: zapcore.FatalLevel,
}

// ZapLevel maps one of the DefaultLevel* constants to a zap level, unknown levels map to info.
func ZapLevel(level int) zapcore.Level {
	if l, ok := levelMap[level]; ok {
		return l
	}
	return zapcore.InfoLevel
}

// format is [LEVEL|name] 2006-01-02T15:04:05.000Z0700: message
func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + name + "]")
	}
	cfg.CallerKey = ""
	return cfg
}

func newCore(out io.Writer, level zapcore.Level) zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig()),
		zapcore.Lock(zapcore.AddSync(out)),
		zap.NewAtomicLevelAt(level),
	)
}
