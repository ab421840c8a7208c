// Package logger is a small leveled logger writing to a single file that is
// trimmed in place once it grows past MaxLogLines. The daemon keeps one log
// next to its executable, so rotation to sibling files is not wanted.
package logger

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// MaxLogLines is the line count the log file is trimmed back to.
const MaxLogLines = 5000

type LogLevel int

const (
	LogLevelTrace LogLevel = iota
	LogLevelDebug
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levelNames = map[LogLevel]string{
	LogLevelTrace: "TRACE",
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
}

func (l LogLevel) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "UNKNOWN"
}

// ParseLogLevel maps a config string to a level, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "TRACE":
		return LogLevelTrace
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LimitedLogger is a leveled, line-count-limited file logger. It also
// implements io.Writer so the standard library log package can be pointed
// at it.
type LimitedLogger struct {
	mu    sync.Mutex
	file  *os.File
	level LogLevel
	lines int
}

var globalLogger *LimitedLogger

var stderrLogger = &LimitedLogger{file: os.Stderr, level: LogLevelInfo}

// global returns the installed logger, or a stderr fallback before
// NewLimitedLogger has run.
func global() *LimitedLogger {
	if globalLogger != nil {
		return globalLogger
	}
	return stderrLogger
}

// NewLimitedLogger wraps an open log file and installs the result as the
// global logger. The file's current line count is taken as the starting
// point for rotation.
func NewLimitedLogger(file *os.File, level LogLevel) *LimitedLogger {
	ll := &LimitedLogger{file: file, level: level}
	ll.lines = scanLineCount(file)
	globalLogger = ll
	return ll
}

func (ll *LimitedLogger) SetLevel(level LogLevel) {
	ll.mu.Lock()
	ll.level = level
	ll.mu.Unlock()
}

// SetGlobalLevel adjusts the installed logger, if any.
func SetGlobalLevel(level LogLevel) {
	if globalLogger != nil {
		globalLogger.SetLevel(level)
	}
}

func (ll *LimitedLogger) enabled(level LogLevel) bool { return level >= ll.level }

func (ll *LimitedLogger) emit(level LogLevel, format string, v ...any) {
	if !ll.enabled(level) {
		return
	}
	line := fmt.Sprintf("%s [%s] %s\n",
		time.Now().Format("2006/01/02 15:04:05"), level, fmt.Sprintf(format, v...))
	ll.Write([]byte(line))
}

func (ll *LimitedLogger) Debug(format string, v ...any) { ll.emit(LogLevelDebug, format, v...) }
func (ll *LimitedLogger) Info(format string, v ...any)  { ll.emit(LogLevelInfo, format, v...) }
func (ll *LimitedLogger) Warn(format string, v ...any)  { ll.emit(LogLevelWarn, format, v...) }
func (ll *LimitedLogger) Error(format string, v ...any) { ll.emit(LogLevelError, format, v...) }

// Fatal logs at error level and exits.
func (ll *LimitedLogger) Fatal(format string, v ...any) {
	ll.emit(LogLevelError, format, v...)
	os.Exit(1)
}

func Debug(format string, v ...any) { global().Debug(format, v...) }
func Info(format string, v ...any)  { global().Info(format, v...) }
func Warn(format string, v ...any)  { global().Warn(format, v...) }
func Error(format string, v ...any) { global().Error(format, v...) }
func Fatal(format string, v ...any) { global().Fatal(format, v...) }

var noop = func() {}

// Trace times an operation at trace level:
//
//	defer logger.Trace("realign")()
func Trace(name string) func() {
	g := global()
	if !g.enabled(LogLevelTrace) {
		return noop
	}
	start := time.Now()
	return func() {
		g.emit(LogLevelTrace, "%s: %v", name, time.Since(start))
	}
}

// Write appends to the log file, trimming it when it passes MaxLogLines.
// It satisfies io.Writer so log.SetOutput can target the logger.
func (ll *LimitedLogger) Write(p []byte) (int, error) {
	ll.mu.Lock()
	defer ll.mu.Unlock()

	n, err := ll.file.Write(p)
	if err != nil {
		return n, err
	}

	ll.lines += bytes.Count(p, []byte{'\n'})
	if ll.lines > MaxLogLines {
		ll.trim()
	}
	return n, nil
}

// trim rewrites the file keeping only its last MaxLogLines lines. Called
// with the mutex held.
func (ll *LimitedLogger) trim() {
	ll.file.Seek(0, io.SeekStart)

	var kept []string
	scanner := bufio.NewScanner(ll.file)
	for scanner.Scan() {
		kept = append(kept, scanner.Text())
		if len(kept) > MaxLogLines {
			kept = kept[1:]
		}
	}

	ll.file.Truncate(0)
	ll.file.Seek(0, io.SeekStart)
	for _, line := range kept {
		fmt.Fprintln(ll.file, line)
	}
	ll.lines = len(kept)
}

func scanLineCount(f *os.File) int {
	f.Seek(0, io.SeekStart)
	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		count++
	}
	f.Seek(0, io.SeekEnd)
	return count
}

func (ll *LimitedLogger) Close() error {
	return ll.file.Close()
}
