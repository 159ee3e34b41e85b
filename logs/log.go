package logs

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 定义日志级别常量（数值越大，级别越高）
const (
	LevelTrace   = iota // 0（最低，最详细）
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5（最高，最严重）
)

// Logger 节点日志接口，各组件通过构造函数注入
type Logger interface {
	Trace(format string, v ...interface{})
	Debug(format string, v ...interface{})
	Verbose(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	// History 最近的日志行（环形缓冲区）
	History() []string
}

var (
	mu       sync.RWMutex
	logLevel = LevelInfo
	base     = newZap(os.Stdout)
)

// 包级别函数使用的 Logger
var global Logger = &nodeLogger{sugar: base.Sugar()}

func newZap(out zapcore.WriteSyncer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), out, zapcore.DebugLevel)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
}

// SetLevel 设置全局日志级别
func SetLevel(level int) {
	mu.Lock()
	logLevel = level
	mu.Unlock()
}

// ParseLevel 配置里的字符串级别
func ParseLevel(s string) (int, error) {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "verbose":
		return LevelVerbose, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func enabled(level int) bool {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel <= level
}

// SetDefault 替换包级别函数使用的 Logger
func SetDefault(l Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

func current() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync 进程退出前刷新
func Sync() error {
	return base.Sync()
}

// 包级别的日志方法
func Trace(format string, v ...interface{})   { current().Trace(format, v...) }
func Debug(format string, v ...interface{})   { current().Debug(format, v...) }
func Verbose(format string, v ...interface{}) { current().Verbose(format, v...) }
func Info(format string, v ...interface{})    { current().Info(format, v...) }
func Warn(format string, v ...interface{})    { current().Warn(format, v...) }
func Error(format string, v ...interface{})   { current().Error(format, v...) }
