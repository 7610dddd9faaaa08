// Package testhelpers provides shared utilities for testing filterline
package testhelpers

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// WaitFor waits for a condition to become true with timeout
// Usage:
//
//	testhelpers.WaitFor(t, func() bool {
//	    return watcher.Runs() > 1
//	}, 5*time.Second)
func WaitFor(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within %v", timeout)
			return
		}
	}
}

// VerifyNoLeaks snapshots the running goroutines and returns a check that
// fails the test if any started since are still running.
// Usage:
//
//	defer testhelpers.VerifyNoLeaks(t)()
func VerifyNoLeaks(t *testing.T) func() {
	t.Helper()
	ignore := goleak.IgnoreCurrent()
	return func() {
		t.Helper()
		goleak.VerifyNone(t, ignore)
	}
}

// SkipIfShort skips the test if -short flag is provided
func SkipIfShort(t *testing.T, reason string) {
	t.Helper()
	if testing.Short() {
		t.Skipf("Skipping in short mode: %s", reason)
	}
}

// RequireRipgrep returns the path of a real rg binary or skips the test
func RequireRipgrep(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("rg")
	if err != nil {
		t.Skip("ripgrep not found in PATH")
	}
	return path
}

// RequirePOSIX skips tests that depend on a POSIX shell
func RequirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// FakeTool writes an executable shell script standing in for ripgrep.
// body runs after "#!/bin/sh" with the ripgrep arguments in "$@".
func FakeTool(t *testing.T, body string) string {
	t.Helper()
	RequirePOSIX(t)
	path := filepath.Join(t.TempDir(), "fake-rg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake tool: %v", err)
	}
	return path
}

// FakeToolCatPatterns is a FakeTool body that prints the pattern file
// passed with --file and exits 0
const FakeToolCatPatterns = `while [ $# -gt 0 ]; do
  if [ "$1" = "--file" ]; then cat "$2"; fi
  shift
done`

// WriteLines writes lines, each newline-terminated, to a new file in dir
func WriteLines(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	content := ""
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// ReadLines reads a file and splits it on "\n", dropping the final empty
// element produced by a trailing terminator
func ReadLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	text := string(data)
	if text == "" {
		return []string{}
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

// TestData provides common inputs for filter tests
var TestData = struct {
	Fruit   []string
	AppLog  []string
	Symbols []string
}{
	Fruit: []string{"apple", "banana", "Apple Pie", "grape"},

	AppLog: []string{
		"2024-03-01 10:00:00 INFO  server started on :8080",
		"2024-03-01 10:00:01 DEBUG loading config from /etc/app.kdl",
		"2024-03-01 10:00:02 WARN  cache miss for key user:42",
		"2024-03-01 10:00:03 ERROR connection refused (retry 1/3)",
		"2024-03-01 10:00:04 INFO  request GET /api/items 200",
		"2024-03-01 10:00:05 ERROR timeout after 30s [upstream=db]",
		"2024-03-01 10:00:06 INFO  shutdown requested",
	},

	Symbols: []string{
		"price: $4.99 (USD)",
		"regex a+b literally",
		"aaab matches a+b as a regex",
		"path C:\\temp\\file.txt",
		"plain line",
		"[bracketed] {braced} ^caret|pipe",
	},
}

// GetLogTree returns a directory fixture of log files keyed by relative path
func GetLogTree() map[string][]string {
	return map[string][]string{
		"app/server.log": TestData.AppLog,
		"app/fruit.txt":  TestData.Fruit,
		"misc/notes.md":  {"# notes", "ERROR in heading", "nothing else"},
	}
}

// WriteTree materializes a GetLogTree-style fixture under dir
func WriteTree(t *testing.T, dir string, tree map[string][]string) {
	t.Helper()
	for rel, lines := range tree {
		WriteLines(t, dir, filepath.FromSlash(rel), lines)
	}
}
