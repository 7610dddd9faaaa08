// Package safety decides whether a result file is small enough to load into
// an editor buffer without exhausting memory.
package safety

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"runtime/debug"

	fldebug "github.com/standardbeagle/filterline/internal/debug"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
)

const (
	// DefaultFactor is the multiplier applied to search-derived results
	DefaultFactor = 2.0

	// DefaultSystemFraction is the share of free system memory a result may claim
	DefaultSystemFraction = 0.9

	LimitHeap   = "heap"
	LimitSystem = "system"
)

// Unbounded is reported for a limit that cannot be measured or is not set
const Unbounded = math.MaxUint64

// Snapshot is one reading of the memory available to load a result
type Snapshot struct {
	HeapHeadroom uint64 // Unbounded when no heap limit applies
	SystemFree   uint64 // Unbounded when the platform cannot report it
}

// MemoryProbe reads current memory availability
type MemoryProbe interface {
	Snapshot() Snapshot
}

// RuntimeProbe measures the Go runtime's headroom under its memory limit
// (or HeapBudget when set) and the operating system's free memory.
type RuntimeProbe struct {
	HeapBudget uint64
}

// Snapshot implements MemoryProbe
func (p RuntimeProbe) Snapshot() Snapshot {
	s := Snapshot{HeapHeadroom: Unbounded, SystemFree: Unbounded}

	limit := uint64(Unbounded)
	if l := debug.SetMemoryLimit(-1); l > 0 && l != math.MaxInt64 {
		limit = uint64(l)
	}
	if p.HeapBudget > 0 && p.HeapBudget < limit {
		limit = p.HeapBudget
	}
	if limit != Unbounded {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		used := ms.Sys - ms.HeapReleased
		if used < limit {
			s.HeapHeadroom = limit - used
		} else {
			s.HeapHeadroom = 0
		}
	}

	if free, ok := systemFreeMemory(); ok {
		s.SystemFree = free
	}
	return s
}

// Report explains a gate decision
type Report struct {
	Path           string
	Size           int64
	Factor         float64
	Estimated      uint64
	HeapHeadroom   uint64
	SystemFree     uint64
	Admitted       bool
	LimitingFactor string // empty when admitted
}

// Err returns the presentation error for a rejected result, nil otherwise
func (r Report) Err() error {
	if r.Admitted {
		return nil
	}
	available := r.HeapHeadroom
	if r.LimitingFactor == LimitSystem {
		available = r.SystemFree
	}
	return flerrors.NewLowMemoryError(r.Path, r.Estimated, available, r.LimitingFactor)
}

// Admit reports whether a file of size bytes fits: it is rejected iff
// size*factor exceeds the heap headroom or 90% of free system memory.
func Admit(size int64, factor float64, heapHeadroom, systemFree uint64) bool {
	ok, _ := admit(float64(size)*factor, heapHeadroom, systemFree, DefaultSystemFraction)
	return ok
}

func admit(estimated float64, heapHeadroom, systemFree uint64, fraction float64) (bool, string) {
	if heapHeadroom != Unbounded && estimated > float64(heapHeadroom) {
		return false, LimitHeap
	}
	if systemFree != Unbounded && estimated > fraction*float64(systemFree) {
		return false, LimitSystem
	}
	return true, ""
}

// Gate evaluates result files against a memory probe
type Gate struct {
	probe          MemoryProbe
	systemFraction float64
}

// NewGate creates a gate. A nil probe uses RuntimeProbe with no heap budget,
// a non-positive fraction uses DefaultSystemFraction.
func NewGate(probe MemoryProbe, systemFraction float64) *Gate {
	if probe == nil {
		probe = RuntimeProbe{}
	}
	if systemFraction <= 0 || systemFraction > 1 {
		systemFraction = DefaultSystemFraction
	}
	return &Gate{probe: probe, systemFraction: systemFraction}
}

// Evaluate sizes the file at path and decides whether it can be loaded.
// An error means the decision could not be made at all.
func (g *Gate) Evaluate(path string, factor float64) (Report, error) {
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor <= 0 {
		return Report{}, flerrors.NewConfigError("safety.factor", fmt.Sprint(factor), fmt.Errorf("must be a positive number"))
	}

	info, err := os.Stat(path)
	if err != nil {
		return Report{}, flerrors.NewFileError("stat", path, err)
	}
	if info.IsDir() {
		return Report{}, flerrors.NewFileError("open", path, fmt.Errorf("is a directory"))
	}

	snap := g.probe.Snapshot()
	estimated := float64(info.Size()) * factor
	ok, limit := admit(estimated, snap.HeapHeadroom, snap.SystemFree, g.systemFraction)

	r := Report{
		Path:           path,
		Size:           info.Size(),
		Factor:         factor,
		Estimated:      uint64(estimated),
		HeapHeadroom:   snap.HeapHeadroom,
		SystemFree:     snap.SystemFree,
		Admitted:       ok,
		LimitingFactor: limit,
	}
	fldebug.LogSafety("%s: size=%d factor=%.2f estimate=%d heap=%d free=%d admitted=%v",
		path, r.Size, factor, r.Estimated, snap.HeapHeadroom, snap.SystemFree, ok)
	return r, nil
}

// CanOpenSafely is the boolean form of Evaluate; undecidable means no
func (g *Gate) CanOpenSafely(path string, factor float64) bool {
	r, err := g.Evaluate(path, factor)
	return err == nil && r.Admitted
}
