package logger

import (
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// SimpleLogger is the logger handed to every component. Prefixes such as "[Router]" become
// zap logger names, so nested prefixes read as "[Server.Router]".
type SimpleLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a console logger writing to out. verbose enables debug output.
func New(out io.Writer, prefix string, verbose bool) *SimpleLogger {
	level := DefaultLevelInfo
	if verbose {
		level = DefaultLevelDebug
	}
	return NewWithLevel(out, prefix, level)
}

func NewWithLevel(out io.Writer, prefix string, level int) *SimpleLogger {
	l := &SimpleLogger{zap.New(newCore(out, ZapLevel(level))).Sugar()}
	return l.WithPrefix(prefix)
}

// NewNop returns a logger that discards everything.
func NewNop() *SimpleLogger {
	return &SimpleLogger{zap.NewNop().Sugar()}
}

// NewTestLogger routes output through t.Log so it only shows up for failing or verbose tests.
func NewTestLogger(t zaptest.TestingT) *SimpleLogger {
	return &SimpleLogger{zaptest.NewLogger(t).Sugar()}
}

func trimPrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "[]")
}

// WithPrefix returns a child logger, the receiver is left untouched.
func (l *SimpleLogger) WithPrefix(prefix string) *SimpleLogger {
	name := trimPrefix(prefix)
	if name == "" {
		return l
	}
	return &SimpleLogger{l.sugar.Named(name)}
}

// With returns a child logger carrying the given key/value pairs on every entry.
func (l *SimpleLogger) With(keysAndValues ...interface{}) *SimpleLogger {
	return &SimpleLogger{l.sugar.With(keysAndValues...)}
}

func (l *SimpleLogger) Printf(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *SimpleLogger) Sync() error {
	return l.sugar.Sync()
}

func LogError(logger *SimpleLogger, fnName string, err error) {
	if err != nil {
		logger.Errorf("error happened at %s due to %s", fnName, err.Error())
	}
}
