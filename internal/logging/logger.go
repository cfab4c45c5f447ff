package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// traceLevel лежит ниже zapcore.DebugLevel, zap о нём ничего не знает.
const traceLevel = zapcore.DebugLevel - 1

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из конфигурации ("debug", "INFO", ...).
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, nil
	case "DEBUG":
		return DEBUG, nil
	case "", "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("неизвестный уровень логирования %q", s)
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case TRACE:
		return traceLevel
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger представляет систему логирования одного компонента.
// Консоль и файл имеют независимые пороги.
type Logger struct {
	component    string
	zl           *zap.Logger
	file         *os.File
	consoleLevel zap.AtomicLevel
	fileLevel    zap.AtomicLevel
}

var (
	logDirMu     sync.RWMutex
	logDir       string
	consoleFloor = INFO
)

// SetLogDir задаёт каталог для файловых логов. Пустая строка (по умолчанию)
// отключает файлы.
func SetLogDir(dir string) {
	logDirMu.Lock()
	logDir = dir
	logDirMu.Unlock()
}

func currentLogDir() string {
	logDirMu.RLock()
	defer logDirMu.RUnlock()
	return logDir
}

// SetConsoleLevel задаёт порог консоли для новых логгеров и глобального логгера.
func SetConsoleLevel(level LogLevel) {
	logDirMu.Lock()
	consoleFloor = level
	logDirMu.Unlock()
	Default().consoleLevel.SetLevel(level.zapLevel())
}

func currentConsoleLevel() LogLevel {
	logDirMu.RLock()
	defer logDirMu.RUnlock()
	return consoleFloor
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == traceLevel {
		enc.AppendString("TRACE")
		return
	}
	enc.AppendString(l.CapitalString())
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = encodeLevel
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	cfg.CallerKey = ""
	return cfg
}

// NewConsoleLogger создаёт логгер без файлового вывода.
func NewConsoleLogger(component string, level LogLevel) *Logger {
	consoleLevel := zap.NewAtomicLevelAt(level.zapLevel())
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stdout), consoleLevel)

	zl := zap.New(core)
	if component != "" {
		zl = zl.Named(component)
	}
	return &Logger{
		component:    component,
		zl:           zl,
		consoleLevel: consoleLevel,
		fileLevel:    zap.NewAtomicLevelAt(zapcore.FatalLevel),
	}
}

// NewLogger создаёт логгер компонента: консоль (INFO+) и JSON-файл (все уровни)
// в каталоге логов с временной меткой в имени.
func NewLogger(component string) (*Logger, error) {
	dir := currentLogDir()
	if dir == "" {
		return NewConsoleLogger(component, currentConsoleLevel()), nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}

	consoleLevel := zap.NewAtomicLevelAt(currentConsoleLevel().zapLevel())
	fileLevel := zap.NewAtomicLevelAt(TRACE.zapLevel())

	fileCfg := zap.NewProductionEncoderConfig()
	fileCfg.EncodeLevel = encodeLevel
	fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), zapcore.Lock(os.Stdout), consoleLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), zapcore.AddSync(file), fileLevel),
	)

	return &Logger{
		component:    component,
		zl:           zap.New(core).Named(component),
		file:         file,
		consoleLevel: consoleLevel,
		fileLevel:    fileLevel,
	}, nil
}

// Component возвращает имя компонента логгера
func (l *Logger) Component() string {
	return l.component
}

// SetLevels меняет пороги консоли и файла на лету
func (l *Logger) SetLevels(console, file LogLevel) {
	l.consoleLevel.SetLevel(console.zapLevel())
	if l.file != nil {
		l.fileLevel.SetLevel(file.zapLevel())
	}
}

// Enabled сообщает, будет ли записано сообщение уровня level хоть куда-то.
func (l *Logger) Enabled(level LogLevel) bool {
	return l.zl.Core().Enabled(level.zapLevel())
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	if ce := l.zl.Check(level.zapLevel(), fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) { l.log(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) { l.log(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) { l.log(INFO, format, args...) }

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) { l.log(WARN, format, args...) }

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) { l.log(ERROR, format, args...) }

// Close сбрасывает буферы и закрывает файл логов
func (l *Logger) Close() error {
	_ = l.zl.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// === Глобальный логгер ===

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewConsoleLogger("", INFO)
)

// Default возвращает текущий глобальный логгер
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// InitDefaultLogger заменяет глобальный логгер файловым логгером компонента name.
func InitDefaultLogger(name string) error {
	logger, err := NewLogger(name)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
	return nil
}

// CloseDefaultLogger закрывает глобальный логгер и возвращает консольный.
func CloseDefaultLogger() {
	defaultMu.Lock()
	old := defaultLogger
	defaultLogger = NewConsoleLogger("", INFO)
	defaultMu.Unlock()
	_ = old.Close()
}

// Trace логирует сообщение уровня TRACE в глобальный логгер
func Trace(format string, args ...interface{}) { Default().Trace(format, args...) }

// Debug логирует сообщение уровня DEBUG в глобальный логгер
func Debug(format string, args ...interface{}) { Default().Debug(format, args...) }

// Info логирует сообщение уровня INFO в глобальный логгер
func Info(format string, args ...interface{}) { Default().Info(format, args...) }

// Warn логирует сообщение уровня WARN в глобальный логгер
func Warn(format string, args ...interface{}) { Default().Warn(format, args...) }

// Error логирует сообщение уровня ERROR в глобальный логгер
func Error(format string, args ...interface{}) { Default().Error(format, args...) }
