package ripgrep

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/standardbeagle/filterline/internal/debug"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
)

// DefaultToolName is the executable looked up on PATH when no path is configured
func DefaultToolName() string {
	if runtime.GOOS == "windows" {
		return "rg.exe"
	}
	return "rg"
}

// Locator resolves the ripgrep executable once and remembers the answer
// until the configured path changes or Invalidate is called.
type Locator struct {
	mu         sync.Mutex
	configured string
	checked    bool
	resolved   string
	err        error

	lookPath func(string) (string, error)
}

// NewLocator creates a locator for path; empty means search PATH
func NewLocator(path string) *Locator {
	return &Locator{configured: path, lookPath: exec.LookPath}
}

// SetPath changes the configured path, discarding a cached answer if it differs
func (l *Locator) SetPath(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if path == l.configured {
		return
	}
	l.configured = path
	l.checked = false
}

// Path returns the configured path
func (l *Locator) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.configured
}

// Invalidate forces the next Resolve to look again
func (l *Locator) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.checked = false
}

// Resolve returns the executable path or a ToolUnavailableError
func (l *Locator) Resolve() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.checked {
		l.resolved, l.err = l.resolve()
		l.checked = true
		if l.err != nil {
			debug.LogRipgrep("ripgrep unavailable: %v", l.err)
		} else {
			debug.LogRipgrep("ripgrep resolved to %s", l.resolved)
		}
	}
	return l.resolved, l.err
}

// Available reports whether Resolve succeeds
func (l *Locator) Available() bool {
	_, err := l.Resolve()
	return err == nil
}

func (l *Locator) resolve() (string, error) {
	name := l.configured
	if name == "" {
		name = DefaultToolName()
	}

	// Bare names go through PATH lookup
	if !strings.ContainsAny(name, `/\`) {
		path, err := l.lookPath(name)
		if err != nil {
			return "", flerrors.NewToolUnavailableError(l.configured, "not found in PATH")
		}
		return path, nil
	}

	info, err := os.Stat(name)
	if err != nil {
		return "", flerrors.NewToolUnavailableError(name, "does not exist")
	}
	if !info.Mode().IsRegular() {
		return "", flerrors.NewToolUnavailableError(name, "is not a regular file")
	}
	if !executable(uint32(info.Mode().Perm())) {
		return "", flerrors.NewToolUnavailableError(name, "is not executable")
	}
	return name, nil
}

// Version runs the resolved tool with --version and returns its first line
func (l *Locator) Version(ctx context.Context) (string, error) {
	tool, err := l.Resolve()
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, tool, "--version")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", flerrors.NewProcessLaunchError(tool, []string{"--version"}, err)
	}
	first, _, _ := strings.Cut(stdout.String(), "\n")
	first = strings.TrimSpace(first)
	if first == "" {
		return "", fmt.Errorf("%s --version printed nothing", tool)
	}
	return first, nil
}
