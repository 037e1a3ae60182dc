package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar *zap.SugaredLogger
)

func init() {
	sugar = newLogger(zapcore.Lock(os.Stderr))
}

func newLogger(out zapcore.WriteSyncer) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), out, level)
	return zap.New(core).Sugar()
}

// SetDebug enables or disables debug logging
func SetDebug(enabled bool) {
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.InfoLevel)
}

// DebugEnabled reports whether debug messages are currently emitted.
func DebugEnabled() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// SetOutput redirects all log output. Intended for tests.
func SetOutput(out zapcore.WriteSyncer) {
	sugar = newLogger(out)
}

// Named returns a structured zap logger tagged with the component name.
func Named(name string) *zap.Logger {
	return sugar.Desugar().Named(name)
}

// Sync flushes buffered log entries.
func Sync() {
	_ = sugar.Sync()
}

// Info logs an informational message
func Info(format string, args ...interface{}) {
	sugar.Infof(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	sugar.Errorf(format, args...)
}

// Debug logs a debug message if debug logging is enabled
func Debug(format string, args ...interface{}) {
	sugar.Debugf(format, args...)
}

// Infof is an alias for Info for consistency
func Infof(format string, args ...interface{}) {
	Info(format, args...)
}

// Errorf is an alias for Error for consistency
func Errorf(format string, args ...interface{}) {
	Error(format, args...)
}

// Debugf is an alias for Debug for consistency
func Debugf(format string, args ...interface{}) {
	Debug(format, args...)
}

// Fatal logs an error message and exits with status 1
func Fatal(format string, args ...interface{}) {
	sugar.Errorf(format, args...)
	Sync()
	os.Exit(1)
}

// Fatalf is an alias for Fatal for consistency
func Fatalf(format string, args ...interface{}) {
	Fatal(format, args...)
}
