// Package debug carries filterline's diagnostic log. Messages are tagged
// with the component that wrote them and go to one writer: stderr when
// DEBUG is set in the environment, or a file opened with InitDebugLogFile.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// EnableDebug turns logging on for a build:
// go build -ldflags "-X github.com/standardbeagle/filterline/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// LogDirName is the directory under os.TempDir holding debug log files
const LogDirName = "filterline-debug-logs"

var (
	mu      sync.Mutex
	out     io.Writer
	logFile *os.File

	// mcpMode is set while the MCP server owns stdin and stdout
	mcpMode atomic.Bool
)

// SetMCPMode keeps debug output off the standard streams. A log file
// opened with InitDebugLogFile still receives messages.
func SetMCPMode(enabled bool) {
	mcpMode.Store(enabled)
}

// FromEnv reports whether the build or the DEBUG variable asks for logging
func FromEnv() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

// SetDebugOutput directs messages to w; nil discards them.
func SetDebugOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// InitDebugLogFile opens a fresh timestamped log file, makes it the
// destination for every message and returns its path. A file opened by an
// earlier call is closed first.
func InitDebugLogFile() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	dir := filepath.Join(os.TempDir(), LogDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}
	name := fmt.Sprintf("debug-%s-%d.log", time.Now().Format("2006-01-02T150405"), os.Getpid())
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	if logFile != nil {
		logFile.Close()
	}
	logFile, out = f, f
	return path, nil
}

// CloseDebugLog closes the log file, if any, and stops output
func CloseDebugLog() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile, out = nil, nil
	return err
}

// write sends one message to the current destination under the lock so
// lines from concurrent searches do not interleave
func write(tag, format string, args []interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if out == nil {
		return
	}
	toFile := logFile != nil && out == io.Writer(logFile)
	if !toFile && (mcpMode.Load() || !FromEnv()) {
		return
	}
	fmt.Fprintf(out, "["+tag+"] "+format, args...)
}

// Printf logs an untagged message
func Printf(format string, args ...interface{}) {
	write("DEBUG", format, args)
}

// Log logs a message tagged with component
func Log(component, format string, args ...interface{}) {
	write("DEBUG:"+component, format, args)
}

func LogSearch(format string, args ...interface{}) { Log("SEARCH", format, args...) }
func LogRipgrep(format string, args ...interface{}) { Log("RIPGREP", format, args...) }
func LogScan(format string, args ...interface{}) { Log("SCAN", format, args...) }
func LogCache(format string, args ...interface{}) { Log("CACHE", format, args...) }
func LogSafety(format string, args ...interface{}) { Log("SAFETY", format, args...) }
func LogWatch(format string, args ...interface{}) { Log("WATCH", format, args...) }
func LogMCP(format string, args ...interface{}) { Log("MCP", format, args...) }

// Fatal logs msg as fatal and returns it as an error for the caller to
// report; it never exits.
func Fatal(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	write("FATAL", "%s", []interface{}{msg})
	return fmt.Errorf("fatal error: %s", msg)
}
