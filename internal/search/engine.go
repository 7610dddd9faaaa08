// Package search is the single entry point callers use to filter a file or
// directory. It picks ripgrep when available and the in-process scanner
// otherwise, and gives both the same outcome contract.
package search

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/filterline/internal/cache"
	"github.com/standardbeagle/filterline/internal/config"
	"github.com/standardbeagle/filterline/internal/debug"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
	"github.com/standardbeagle/filterline/internal/pattern"
	"github.com/standardbeagle/filterline/internal/ripgrep"
	"github.com/standardbeagle/filterline/internal/safety"
	"github.com/standardbeagle/filterline/internal/scanner"
	"github.com/standardbeagle/filterline/internal/types"
)

const (
	DefaultContextLines         = 500
	DefaultMaxContextResultSize = 50 * 1024 * 1024
	defaultPatternCacheSize     = 128
)

// Options configures an Engine. The zero value looks for rg on PATH and
// keeps its cache under cache.DefaultRoot.
type Options struct {
	ToolPath  string
	ShellMode bool
	CacheRoot string

	Probe          safety.MemoryProbe // nil uses safety.RuntimeProbe
	SystemFraction float64

	MaxConcurrent        int // SearchBatch worker limit; <= 0 means 1
	ContextLines         int
	MaxContextResultSize int64
}

// Engine owns the tool locator, the pattern cache, and the cache allocator.
// Searches share no mutable per-search state, so one Engine serves
// concurrent callers.
type Engine struct {
	locator  *ripgrep.Locator
	invoker  *ripgrep.Invoker
	scanner  *scanner.Scanner
	alloc    *cache.Allocator
	gate     *safety.Gate
	patterns *pattern.Cache

	maxConcurrent        int
	contextLines         int
	maxContextResultSize int64
}

// New creates an engine from explicit options
func New(opts Options) *Engine {
	alloc := cache.NewAllocator(opts.CacheRoot)
	locator := ripgrep.NewLocator(opts.ToolPath)
	invoker := ripgrep.NewInvoker(locator, alloc)
	invoker.ShellMode = opts.ShellMode

	e := &Engine{
		locator:              locator,
		invoker:              invoker,
		scanner:              scanner.New(),
		alloc:                alloc,
		gate:                 safety.NewGate(opts.Probe, opts.SystemFraction),
		patterns:             pattern.NewCache(defaultPatternCacheSize),
		maxConcurrent:        opts.MaxConcurrent,
		contextLines:         opts.ContextLines,
		maxContextResultSize: opts.MaxContextResultSize,
	}
	if e.maxConcurrent <= 0 {
		e.maxConcurrent = 1
	}
	if e.contextLines <= 0 {
		e.contextLines = DefaultContextLines
	}
	if e.maxContextResultSize <= 0 {
		e.maxContextResultSize = DefaultMaxContextResultSize
	}
	return e
}

// NewFromConfig creates an engine from loaded configuration
func NewFromConfig(cfg *config.Config) *Engine {
	var budget uint64
	if cfg.Safety.HeapBudget > 0 {
		budget = uint64(cfg.Safety.HeapBudget)
	}
	return New(Options{
		ToolPath:             cfg.Ripgrep.Path,
		ShellMode:            cfg.Ripgrep.ShellMode,
		CacheRoot:            cfg.Cache.Root,
		Probe:                safety.RuntimeProbe{HeapBudget: budget},
		SystemFraction:       cfg.Safety.SystemFraction,
		MaxConcurrent:        cfg.Performance.MaxConcurrentSearches,
		ContextLines:         cfg.Context.Lines,
		MaxContextResultSize: cfg.Context.MaxResultSize,
	})
}

func (e *Engine) Locator() *ripgrep.Locator { return e.locator }

func (e *Engine) Allocator() *cache.Allocator { return e.alloc }

func (e *Engine) Gate() *safety.Gate { return e.gate }

// PatternStats reports compiled-pattern cache effectiveness
func (e *Engine) PatternStats() pattern.CacheStats { return e.patterns.Stats() }

// Search filters input into output with raw under opts.
//
// Order: tool availability (a directory without ripgrep fails here), then
// pattern validation (nothing is created for a bad pattern), then dispatch.
// A failed search leaves no output file behind.
func (e *Engine) Search(ctx context.Context, input, output, raw string, opts types.SearchOptions) (types.Outcome, error) {
	outcome := types.Outcome{OutputPath: output, Strategy: types.StrategyNone}

	available := e.locator.Available()
	if !available {
		info, err := os.Stat(input)
		if err != nil {
			return outcome, flerrors.NewFileError("open", input, err)
		}
		if info.IsDir() {
			debug.LogSearch("rejecting directory %s: ripgrep unavailable", input)
			return outcome, flerrors.NewToolUnavailableError(e.toolName(), scanner.ErrDirectoryInput.Error())
		}
	}

	compiled, err := e.patterns.Compile(raw, opts)
	if err != nil {
		return outcome, err
	}
	for _, g := range opts.Globs {
		if !doublestar.ValidatePattern(g) {
			return outcome, flerrors.NewConfigError("glob", g, stderrors.New("invalid glob pattern"))
		}
	}

	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return outcome, flerrors.NewFileError("create", dir, err)
		}
	}

	if available {
		debug.LogSearch("ripgrep: %q in %s", raw, input)
		outcome, err = e.invoker.Run(ctx, input, output, compiled, opts)
		if flerrors.Kind(err) == flerrors.ErrorTypeToolUnavailable {
			// rg vanished after the availability check; files can still be scanned
			if info, statErr := os.Stat(input); statErr == nil && !info.IsDir() {
				debug.LogSearch("ripgrep unavailable at run time, scanning %s in process", input)
				outcome, err = e.scanner.Scan(ctx, input, output, compiled, opts)
			}
		}
	} else {
		debug.LogSearch("fallback: %q in %s", raw, input)
		outcome, err = e.scanner.Scan(ctx, input, output, compiled, opts)
	}

	outcome.Warnings = append(outcome.Warnings, compiled.Warnings()...)
	outcome.Warnings = append(outcome.Warnings, stderrWarnings(outcome.Stderr)...)
	if err != nil {
		return outcome, err
	}

	digest, err := fileDigest(output)
	if err != nil {
		debug.LogSearch("digest of %s failed: %v", output, err)
	}
	outcome.Digest = digest
	return outcome, nil
}

func (e *Engine) toolName() string {
	if p := e.locator.Path(); p != "" {
		return p
	}
	return ripgrep.DefaultToolName()
}

// stderrWarnings turns tool diagnostics into one warning per non-blank line
func stderrWarnings(stderr string) []string {
	var out []string
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func fileDigest(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// ValidatePattern reports whether raw is usable in the given mode
func (e *Engine) ValidatePattern(raw string, regexMode bool) bool {
	return pattern.IsValid(raw, regexMode)
}

// CheckPattern is ValidatePattern with the reason for a rejection
func (e *Engine) CheckPattern(raw string, regexMode bool) error {
	return pattern.Validate(raw, regexMode)
}

// CanOpenSafely reports whether the result at path fits in memory
func (e *Engine) CanOpenSafely(path string, factor float64) bool {
	return e.gate.CanOpenSafely(path, factor)
}

// Evaluate explains the safety decision for the result at path
func (e *Engine) Evaluate(path string, factor float64) (safety.Report, error) {
	return e.gate.Evaluate(path, factor)
}

// Filter searches input into a freshly allocated result file and records the
// input next to it, so the result can later be expanded with Context.
func (e *Engine) Filter(ctx context.Context, input, raw string, opts types.SearchOptions) (types.Outcome, error) {
	output, err := e.alloc.ResultFile(raw, opts.InvertMatch)
	if err != nil {
		return types.Outcome{Strategy: types.StrategyNone}, err
	}

	outcome, err := e.Search(ctx, input, output, raw, opts)
	if err != nil {
		if relErr := e.alloc.Release(output); relErr != nil {
			debug.LogSearch("releasing %s: %v", output, relErr)
		}
		return outcome, err
	}

	source, absErr := filepath.Abs(input)
	if absErr != nil {
		source = input
	}
	if err := cache.WriteSource(output, source); err != nil {
		e.alloc.Release(output)
		outcome.Success = false
		return outcome, err
	}
	return outcome, nil
}

// Context finds line in the source a result was filtered from and writes it
// with its surrounding lines to a new result.
func (e *Engine) Context(ctx context.Context, resultPath, line string) (types.Outcome, error) {
	info, err := os.Stat(resultPath)
	if err != nil {
		return types.Outcome{Strategy: types.StrategyNone}, flerrors.NewFileError("stat", resultPath, err)
	}
	if info.Size() >= e.maxContextResultSize {
		return types.Outcome{Strategy: types.StrategyNone}, flerrors.NewLowMemoryError(resultPath,
			uint64(info.Size()), uint64(e.maxContextResultSize), "context")
	}

	source, err := cache.ReadSource(resultPath)
	if err != nil {
		return types.Outcome{Strategy: types.StrategyNone}, err
	}

	line = strings.TrimRight(line, "\r\n")
	opts := types.SearchOptions{
		ShowFilenameHeader: true,
		ContextLineCount:   e.contextLines,
	}
	debug.LogSearch("context for %q from %s", line, source)
	return e.Filter(ctx, source, line, opts)
}

// Request is one search of a batch
type Request struct {
	Input   string
	Output  string
	Pattern string
	Options types.SearchOptions
}

func (r Request) String() string {
	return fmt.Sprintf("%q in %s", r.Pattern, r.Input)
}

// Result pairs a request with what happened to it
type Result struct {
	Request Request
	Outcome types.Outcome
	Err     error
}
