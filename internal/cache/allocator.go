// Package cache allocates collision-free temporary paths for pattern files and
// filter results, and cleans them up again.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/filterline/internal/debug"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
)

const (
	patternsDir = "patterns"
	resultsDir  = "results"

	// SourceFileName is the sidecar recording which input produced a result
	SourceFileName = "inputPath"
)

// DefaultRoot is the cache root used when none is configured
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), "filterline")
}

// Allocator hands out per-search paths under a process-wide root.
// Every name carries a timestamp and a random suffix, so concurrent
// allocations from any number of goroutines or processes never collide.
type Allocator struct {
	root string
	now  func() time.Time
}

// NewAllocator creates an allocator rooted at root, or DefaultRoot when empty
func NewAllocator(root string) *Allocator {
	if root == "" {
		root = DefaultRoot()
	}
	return &Allocator{root: filepath.Clean(root), now: time.Now}
}

// Root returns the cache root directory
func (a *Allocator) Root() string {
	return a.root
}

// PatternsDir returns the directory holding temporary pattern files
func (a *Allocator) PatternsDir() string {
	return filepath.Join(a.root, patternsDir)
}

// ResultsDir returns the directory holding result directories
func (a *Allocator) ResultsDir() string {
	return filepath.Join(a.root, resultsDir)
}

// PatternFile creates a fresh, empty pattern file open for writing.
// The caller owns the file and must Release it.
func (a *Allocator) PatternFile() (*os.File, error) {
	dir := a.PatternsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, flerrors.NewFileError("create", dir, err)
	}
	f, err := os.CreateTemp(dir, fmt.Sprintf("pattern-%d-*.txt", a.now().UnixNano()))
	if err != nil {
		return nil, flerrors.NewFileError("create", dir, err)
	}
	debug.LogCache("allocated pattern file %s", f.Name())
	return f, nil
}

// ResultFile reserves a new result directory and returns the path of the
// result file inside it. The file itself is left for the search to create.
func (a *Allocator) ResultFile(pattern string, invert bool) (string, error) {
	parent := a.ResultsDir()
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", flerrors.NewFileError("create", parent, err)
	}
	prefix := fmt.Sprintf("%d-%08x-", a.now().UnixNano(), uint32(xxhash.Sum64String(pattern)))
	dir, err := os.MkdirTemp(parent, prefix)
	if err != nil {
		return "", flerrors.NewFileError("create", parent, err)
	}
	path := filepath.Join(dir, ResultName(pattern, invert))
	debug.LogCache("allocated result path %s", path)
	return path, nil
}

// Owns reports whether path lies inside this allocator's root
func (a *Allocator) Owns(path string) bool {
	rel, err := filepath.Rel(a.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// Release removes an allocated path. Result files take their directory
// (and source sidecar) with them. Missing paths are not an error.
func (a *Allocator) Release(path string) error {
	if path == "" {
		return nil
	}
	target := filepath.Clean(path)
	if dir := filepath.Dir(target); filepath.Dir(dir) == a.ResultsDir() {
		target = dir
	}
	if err := os.RemoveAll(target); err != nil {
		return flerrors.NewFileError("remove", target, err)
	}
	debug.LogCache("released %s", target)
	return nil
}

// WriteSource records which input path a result was produced from
func WriteSource(resultPath, inputPath string) error {
	sidecar := filepath.Join(filepath.Dir(resultPath), SourceFileName)
	if err := os.WriteFile(sidecar, []byte(inputPath), 0o644); err != nil {
		return flerrors.NewFileError("write", sidecar, err)
	}
	return nil
}

// ReadSource returns the input path recorded by WriteSource
func ReadSource(resultPath string) (string, error) {
	sidecar := filepath.Join(filepath.Dir(resultPath), SourceFileName)
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return "", flerrors.NewFileError("read", sidecar, err)
	}
	source := strings.TrimSpace(string(data))
	if source == "" {
		return "", flerrors.NewFileError("read", sidecar, fmt.Errorf("empty source record"))
	}
	return source, nil
}
