package docbind

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
	LogOff
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "DEBUG"
	case LogInfo:
		return "INFO"
	case LogWarn:
		return "WARN"
	case LogError:
		return "ERROR"
	case LogOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// zapLevel maps the level onto zap. LogOff sits above every level zap emits.
func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogDebug:
		return zapcore.DebugLevel
	case LogInfo:
		return zapcore.InfoLevel
	case LogWarn:
		return zapcore.WarnLevel
	case LogError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel + 1
	}
}

type Fields map[string]interface{}

// Logger is a leveled printf-style logger backed by zap. Loggers derived with
// WithField share the level of their parent.
type Logger struct {
	sugar *zap.SugaredLogger
	level zap.AtomicLevel
}

var (
	globalLogger     atomic.Pointer[Logger]
	globalLoggerOnce sync.Once
)

func initGlobalLogger() {
	globalLoggerOnce.Do(func() {
		if globalLogger.Load() != nil {
			return
		}
		config := GetGlobalConfig()
		globalLogger.Store(NewLogger(os.Stderr, ParseLogLevel(config.LogLevel)))
	})
}

// ParseLogLevel maps a configured level name to a LogLevel. Unknown names mean info.
func ParseLogLevel(levelStr string) LogLevel {
	switch levelStr {
	case "debug":
		return LogDebug
	case "info":
		return LogInfo
	case "warn":
		return LogWarn
	case "error":
		return LogError
	case "off":
		return LogOff
	default:
		return LogInfo
	}
}

// NewLogger creates a console logger writing to w.
func NewLogger(w io.Writer, level LogLevel) *Logger {
	if w == nil {
		w = io.Discard
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	atom := zap.NewAtomicLevelAt(level.zapLevel())
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), atom)

	return &Logger{
		sugar: zap.New(core).Sugar(),
		level: atom,
	}
}

// NewZapLogger wraps an existing zap logger. level must be the atomic level the logger's
// core was built with, so that SetLevel and IsDebugMode stay accurate.
func NewZapLogger(z *zap.Logger, level zap.AtomicLevel) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{
		sugar: z.Sugar(),
		level: level,
	}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.level.SetLevel(level.zapLevel())
}

func (l *Logger) IsDebugMode() bool {
	return l.level.Enabled(zapcore.DebugLevel)
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		sugar: l.sugar.With(key, value),
		level: l.level,
	}
}

func (l *Logger) WithFields(fields Fields) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{
		sugar: l.sugar.With(args...),
		level: l.level,
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Debug helpers for template development
func (l *Logger) DebugTemplate(template string, context interface{}) {
	if !l.IsDebugMode() {
		return
	}
	l.Debug("Template: %s", template)
	l.Debug("Context: %+v", context)
}

func (l *Logger) DebugExpression(expr string, result interface{}) {
	if !l.IsDebugMode() {
		return
	}
	l.Debug("Expression: %s => %v", expr, result)
}

// Global logging functions
func SetLogger(logger *Logger) {
	globalLoggerOnce.Do(func() {})
	globalLogger.Store(logger)
}

func GetLogger() *Logger {
	initGlobalLogger()
	return globalLogger.Load()
}

func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

func WithField(key string, value interface{}) *Logger {
	return GetLogger().WithField(key, value)
}

func WithFields(fields Fields) *Logger {
	return GetLogger().WithFields(fields)
}

// UpdateLoggerFromConfig updates the global logger based on the current global configuration
func UpdateLoggerFromConfig() {
	config := GetGlobalConfig()
	GetLogger().SetLevel(ParseLogLevel(config.LogLevel))
}
