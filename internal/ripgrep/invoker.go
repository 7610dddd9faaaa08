package ripgrep

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/standardbeagle/filterline/internal/cache"
	"github.com/standardbeagle/filterline/internal/debug"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
	"github.com/standardbeagle/filterline/internal/pattern"
	"github.com/standardbeagle/filterline/internal/types"
)

const (
	// Exit statuses with meaning to ripgrep
	ExitMatched   = 0
	ExitNoMatches = 1
	ExitError     = 2

	// Exit statuses a POSIX shell uses for commands it could not run
	shellNotExecutable = 126
	shellNotFound      = 127

	waitDelay = 2 * time.Second
)

// Invoker runs ripgrep synchronously for one search at a time per call.
// It holds no per-search state, so one Invoker serves concurrent calls.
type Invoker struct {
	locator *Locator
	alloc   *cache.Allocator

	// ShellMode runs the rendered command line through the platform shell
	// with output redirection, instead of executing ripgrep directly.
	ShellMode bool
}

// NewInvoker creates an invoker that allocates pattern files from alloc
func NewInvoker(locator *Locator, alloc *cache.Allocator) *Invoker {
	return &Invoker{locator: locator, alloc: alloc}
}

// Locator returns the locator the invoker resolves ripgrep with
func (iv *Invoker) Locator() *Locator {
	return iv.locator
}

// Run filters input into output. The pattern file it creates is removed on
// every path out of Run; a failed or cancelled run also removes output.
func (iv *Invoker) Run(ctx context.Context, input, output string, c *pattern.Compiled, opts types.SearchOptions) (types.Outcome, error) {
	outcome := types.Outcome{OutputPath: output, Strategy: types.StrategyRipgrep, LinesWritten: -1}

	tool, err := iv.locator.Resolve()
	if err != nil {
		return outcome, err
	}

	info, err := os.Stat(input)
	if err != nil {
		return outcome, flerrors.NewFileError("open", input, err)
	}

	patternPath, err := iv.writePatternFile(c)
	if err != nil {
		return outcome, err
	}
	defer func() {
		if err := iv.alloc.Release(patternPath); err != nil {
			debug.LogRipgrep("pattern file cleanup failed: %v", err)
		}
	}()

	args := BuildArgs(Invocation{
		RegexMode:          c.RegexMode,
		IgnoreCase:         c.IgnoreCase,
		InvertMatch:        opts.InvertMatch,
		PatternFile:        patternPath,
		InputPath:          input,
		InputIsDir:         info.IsDir(),
		ShowFilenameHeader: opts.ShowFilenameHeader,
		ContextLines:       opts.ContextLineCount,
		Globs:              opts.Globs,
	})

	var stderr bytes.Buffer
	var cmd *exec.Cmd
	var out *os.File
	if iv.ShellMode {
		line := CommandLine(tool, args, output, runtime.GOOS)
		debug.LogRipgrep("shell: %s", line)
		cmd = shellCommand(ctx, line)
	} else {
		out, err = os.Create(output)
		if err != nil {
			return outcome, flerrors.NewFileError("create", output, err)
		}
		debug.LogRipgrep("exec: %s %s", tool, strings.Join(args, " "))
		cmd = exec.CommandContext(ctx, tool, args...)
		cmd.Stdout = out
	}
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	runErr := cmd.Run()
	if out != nil {
		if err := out.Close(); err != nil && runErr == nil {
			runErr = flerrors.NewFileError("write", output, err)
		}
	}
	outcome.Stderr = stderr.String()

	result, err := iv.classify(ctx, tool, args, runErr, outcome, info.IsDir())
	if err != nil {
		removeOutput(output)
	}
	return result, err
}

// writePatternFile stores one compiled pattern per line in a fresh file
func (iv *Invoker) writePatternFile(c *pattern.Compiled) (string, error) {
	f, err := iv.alloc.PatternFile()
	if err != nil {
		return "", err
	}
	name := f.Name()
	if _, err := f.Write(c.FileContent()); err != nil {
		f.Close()
		iv.alloc.Release(name)
		return "", flerrors.NewFileError("write", name, err)
	}
	if err := f.Close(); err != nil {
		iv.alloc.Release(name)
		return "", flerrors.NewFileError("write", name, err)
	}
	return name, nil
}

// classify maps how the process ended onto an outcome and error.
// ripgrep exits 2 when any file of a tree could not be searched, after
// writing every match it did find; such a directory result is kept.
func (iv *Invoker) classify(ctx context.Context, tool string, args []string, runErr error, outcome types.Outcome, dirInput bool) (types.Outcome, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome.Cancelled = true
		return outcome, flerrors.NewCancelledError("ripgrep search", ctxErr)
	}

	if runErr == nil {
		outcome.Success = true
		outcome.ExitStatus = types.IntPtr(ExitMatched)
		return outcome, nil
	}

	var fileErr *flerrors.FileError
	if stderrors.As(runErr, &fileErr) {
		return outcome, runErr
	}

	var exitErr *exec.ExitError
	if !stderrors.As(runErr, &exitErr) {
		debug.LogRipgrep("launch failed: %v", runErr)
		return outcome, flerrors.NewProcessLaunchError(tool, args, runErr)
	}

	code := exitErr.ExitCode()
	outcome.ExitStatus = types.IntPtr(code)
	switch {
	case code == ExitNoMatches:
		outcome.Success = true
		return outcome, nil
	case iv.ShellMode && (code == shellNotExecutable || code == shellNotFound):
		return outcome, flerrors.NewProcessLaunchError(tool, args, stderrors.New(strings.TrimSpace(outcome.Stderr)))
	case code == ExitError && dirInput && hasContent(outcome.OutputPath):
		debug.LogRipgrep("partial directory result: %s", strings.TrimSpace(outcome.Stderr))
		outcome.Success = true
		return outcome, nil
	default:
		debug.LogRipgrep("ripgrep exited %d: %s", code, strings.TrimSpace(outcome.Stderr))
		return outcome, flerrors.NewToolFailureError("rg", code, outcome.Stderr)
	}
}

func hasContent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

func removeOutput(path string) {
	if err := os.Remove(path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		debug.LogRipgrep("could not remove partial output %s: %v", path, err)
	}
}
