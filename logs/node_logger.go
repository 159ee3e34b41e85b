package logs

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// nodeLogger 带节点名的 zap 日志，并保留最近 n 行
type nodeLogger struct {
	sugar *zap.SugaredLogger

	mu   sync.Mutex
	ring []string
	next int
	full bool
}

// NewNodeLogger 为单个节点/组件创建日志，bufferSize 为保留的历史行数（0 表示不保留）
func NewNodeLogger(name string, bufferSize int) Logger {
	l := &nodeLogger{sugar: base.Sugar().With("node", name)}
	if bufferSize > 0 {
		l.ring = make([]string, bufferSize)
	}
	return l
}

func (l *nodeLogger) record(level, format string, v ...interface{}) string {
	msg := fmt.Sprintf(format, v...)
	if len(l.ring) == 0 {
		return msg
	}
	l.mu.Lock()
	l.ring[l.next] = level + " " + msg
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
	return msg
}

func (l *nodeLogger) Trace(format string, v ...interface{}) {
	if enabled(LevelTrace) {
		l.sugar.Debug(l.record("TRACE", format, v...))
	}
}

func (l *nodeLogger) Debug(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		l.sugar.Debug(l.record("DEBUG", format, v...))
	}
}

func (l *nodeLogger) Verbose(format string, v ...interface{}) {
	if enabled(LevelVerbose) {
		l.sugar.Debug(l.record("VERBOSE", format, v...))
	}
}

func (l *nodeLogger) Info(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		l.sugar.Info(l.record("INFO", format, v...))
	}
}

func (l *nodeLogger) Warn(format string, v ...interface{}) {
	if enabled(LevelWarning) {
		l.sugar.Warn(l.record("WARN", format, v...))
	}
}

func (l *nodeLogger) Error(format string, v ...interface{}) {
	if enabled(LevelError) {
		l.sugar.Error(l.record("ERROR", format, v...))
	}
}

func (l *nodeLogger) History() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ring) == 0 {
		return nil
	}
	if !l.full {
		return append([]string(nil), l.ring[:l.next]...)
	}
	out := make([]string, 0, len(l.ring))
	out = append(out, l.ring[l.next:]...)
	return append(out, l.ring[:l.next]...)
}
