package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/filterline/internal/debug"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
)

const (
	resultDirGlob   = resultsDir + "/*"
	resultFileGlob  = resultsDir + "/*/*"
	patternFileGlob = patternsDir + "/pattern-*.txt"

	// DefaultGrace protects freshly allocated results from a concurrent sweep
	DefaultGrace = time.Minute
)

// Janitor removes results nobody holds anymore and pattern files left behind
// by crashed processes.
type Janitor struct {
	alloc  *Allocator
	MaxAge time.Duration // pattern files older than this are stale
	Grace  time.Duration // results younger than this are never swept
	now    func() time.Time
}

// SweepReport summarizes one janitor pass
type SweepReport struct {
	ResultsRemoved  int
	PatternsRemoved int
	Kept            int
}

// Usage describes what the cache currently holds
type Usage struct {
	Results      int
	ResultBytes  int64
	PatternFiles int
}

// NewJanitor creates a janitor for the allocator's root
func NewJanitor(alloc *Allocator, maxAge time.Duration) *Janitor {
	return &Janitor{
		alloc:  alloc,
		MaxAge: maxAge,
		Grace:  DefaultGrace,
		now:    time.Now,
	}
}

// glob matches pattern relative to the cache root and returns native paths
func (j *Janitor) glob(pattern string) ([]string, error) {
	root := j.alloc.Root()
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, flerrors.NewFileError("glob", filepath.Join(root, pattern), err)
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(root, filepath.FromSlash(m))
	}
	return paths, nil
}

// absPath makes p absolute so keep paths and globbed paths compare equal
// whichever of them was given relative to the working directory
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func absDir(p string) string {
	return filepath.Dir(absPath(p))
}

func olderThan(path string, cutoff time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}

// Sweep removes every result directory whose result file is not in keep,
// and every pattern file older than MaxAge.
func (j *Janitor) Sweep(keep []string) (SweepReport, error) {
	var report SweepReport
	var errs []error

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		kept[absDir(k)] = true
	}

	dirs, err := j.glob(resultDirGlob)
	if err != nil {
		return report, err
	}
	graceCutoff := j.now().Add(-j.Grace)
	for _, dir := range dirs {
		if kept[absPath(dir)] || !olderThan(dir, graceCutoff) {
			report.Kept++
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, flerrors.NewFileError("remove", dir, err))
			continue
		}
		report.ResultsRemoved++
	}

	if j.MaxAge > 0 {
		patterns, err := j.glob(patternFileGlob)
		if err != nil {
			errs = append(errs, err)
		}
		ageCutoff := j.now().Add(-j.MaxAge)
		for _, p := range patterns {
			if !olderThan(p, ageCutoff) {
				continue
			}
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, flerrors.NewFileError("remove", p, err))
				continue
			}
			report.PatternsRemoved++
		}
	}

	debug.LogCache("sweep removed %d results, %d pattern files, kept %d",
		report.ResultsRemoved, report.PatternsRemoved, report.Kept)
	return report, flerrors.NewMultiError(errs).ErrorOrNil()
}

// Clear removes all results and pattern files, held or not
func (j *Janitor) Clear() (SweepReport, error) {
	var report SweepReport
	var errs []error

	dirs, err := j.glob(resultDirGlob)
	if err != nil {
		return report, err
	}
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, flerrors.NewFileError("remove", dir, err))
			continue
		}
		report.ResultsRemoved++
	}

	patterns, err := j.glob(patternFileGlob)
	if err != nil {
		errs = append(errs, err)
	}
	for _, p := range patterns {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, flerrors.NewFileError("remove", p, err))
			continue
		}
		report.PatternsRemoved++
	}

	debug.LogCache("clear removed %d results, %d pattern files", report.ResultsRemoved, report.PatternsRemoved)
	return report, flerrors.NewMultiError(errs).ErrorOrNil()
}

// Usage reports result count and size. Source sidecars are not counted.
func (j *Janitor) Usage() (Usage, error) {
	var u Usage

	dirs, err := j.glob(resultDirGlob)
	if err != nil {
		return u, err
	}
	u.Results = len(dirs)

	files, err := j.glob(resultFileGlob)
	if err != nil {
		return u, err
	}
	for _, f := range files {
		if filepath.Base(f) == SourceFileName {
			continue
		}
		if info, err := os.Stat(f); err == nil && info.Mode().IsRegular() {
			u.ResultBytes += info.Size()
		}
	}

	patterns, err := j.glob(patternFileGlob)
	if err != nil {
		return u, err
	}
	u.PatternFiles = len(patterns)
	return u, nil
}
