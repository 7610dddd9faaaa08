package safety

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flerrors "github.com/standardbeagle/filterline/internal/errors"
)

type fixedProbe Snapshot

func (p fixedProbe) Snapshot() Snapshot { return Snapshot(p) }

func writeSized(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "result")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	return path
}

func TestAdmitBoundary(t *testing.T) {
	tests := []struct {
		name   string
		size   int64
		factor float64
		heap   uint64
		free   uint64
		want   bool
	}{
		{"fits both", 100, 2, 1000, 1000, true},
		{"equal to heap is admitted", 500, 2, 1000, 10000, true},
		{"one byte over heap", 501, 2, 1000, 10000, false},
		{"equal to 90 percent of free", 450, 2, 10000, 1000, true},
		{"over 90 percent of free", 451, 2, 10000, 1000, false},
		{"fractional factor", 100, 1.5, 150, 1000, true},
		{"fractional factor over", 101, 1.5, 150, 1000, false},
		{"unbounded heap", 1 << 40, 2, Unbounded, Unbounded, true},
		{"unknown system only checks heap", 1000, 2, 1999, Unbounded, false},
		{"empty file", 0, 3, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Admit(tt.size, tt.factor, tt.heap, tt.free))
		})
	}
}

func TestAdmitMatchesFormula(t *testing.T) {
	sizes := []int64{0, 1, 7, 1024, 1 << 20}
	factors := []float64{1, 1.5, 2, 3}
	limits := []uint64{0, 10, 2048, 3 << 20}

	for _, s := range sizes {
		for _, f := range factors {
			for _, h := range limits {
				for _, free := range limits {
					est := float64(s) * f
					want := !(est > float64(h) || est > 0.9*float64(free))
					assert.Equal(t, want, Admit(s, f, h, free), "S=%d F=%v H=%d free=%d", s, f, h, free)
				}
			}
		}
	}
}

func TestGateEvaluate(t *testing.T) {
	path := writeSized(t, 1000)

	gate := NewGate(fixedProbe{HeapHeadroom: 1500, SystemFree: 100000}, 0)
	report, err := gate.Evaluate(path, 2)
	require.NoError(t, err)
	assert.False(t, report.Admitted)
	assert.Equal(t, LimitHeap, report.LimitingFactor)
	assert.Equal(t, uint64(2000), report.Estimated)
	assert.False(t, gate.CanOpenSafely(path, 2))
	assert.True(t, gate.CanOpenSafely(path, 1.5))

	lowErr := report.Err()
	require.Error(t, lowErr)
	assert.Equal(t, flerrors.ErrorTypeLowMemory, flerrors.Kind(lowErr))

	gate = NewGate(fixedProbe{HeapHeadroom: Unbounded, SystemFree: 2000}, 0.5)
	report, err = gate.Evaluate(path, 1.5)
	require.NoError(t, err)
	assert.False(t, report.Admitted)
	assert.Equal(t, LimitSystem, report.LimitingFactor)

	report, err = gate.Evaluate(path, 1)
	require.NoError(t, err)
	assert.True(t, report.Admitted)
	assert.NoError(t, report.Err())
}

func TestGateEvaluateErrors(t *testing.T) {
	gate := NewGate(fixedProbe{HeapHeadroom: Unbounded, SystemFree: Unbounded}, 0)

	_, err := gate.Evaluate(filepath.Join(t.TempDir(), "missing"), 2)
	assert.Equal(t, flerrors.ErrorTypeFileNotFound, flerrors.Kind(err))
	assert.False(t, gate.CanOpenSafely(filepath.Join(t.TempDir(), "missing"), 2))

	_, err = gate.Evaluate(t.TempDir(), 2)
	assert.Error(t, err)

	path := writeSized(t, 10)
	for _, factor := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err = gate.Evaluate(path, factor)
		assert.Equal(t, flerrors.ErrorTypeConfig, flerrors.Kind(err), "factor %v", factor)
	}
}

func TestRuntimeProbeHeapBudget(t *testing.T) {
	snap := RuntimeProbe{HeapBudget: 1}.Snapshot()
	assert.Equal(t, uint64(0), snap.HeapHeadroom)

	snap = RuntimeProbe{HeapBudget: 1 << 50}.Snapshot()
	assert.Greater(t, snap.HeapHeadroom, uint64(0))
	assert.Less(t, snap.HeapHeadroom, uint64(1<<50))
}
