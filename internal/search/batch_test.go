package search

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flerrors "github.com/standardbeagle/filterline/internal/errors"
	"github.com/standardbeagle/filterline/internal/types"
	"github.com/standardbeagle/filterline/testhelpers"
)

func TestSearchBatch(t *testing.T) {
	defer testhelpers.VerifyNoLeaks(t)()
	e := fallbackEngine(t)
	dir := t.TempDir()
	input := testhelpers.WriteLines(t, dir, "app.log", testhelpers.TestData.AppLog)

	patterns := []string{"INFO", "WARN", "(broken", "ERROR", "DEBUG", "10:00:0[0-2]"}
	reqs := make([]Request, len(patterns))
	for i, p := range patterns {
		reqs[i] = Request{
			Input:   input,
			Output:  filepath.Join(dir, fmt.Sprintf("out-%d.txt", i)),
			Pattern: p,
			Options: types.SearchOptions{RegexMode: true},
		}
	}

	results := e.SearchBatch(context.Background(), reqs)
	require.Len(t, results, len(reqs))

	wantCounts := []int{3, 1, -1, 2, 1, 3}
	for i, r := range results {
		assert.Equal(t, reqs[i], r.Request)
		if wantCounts[i] < 0 {
			assert.Equal(t, flerrors.ErrorTypePatternSyntax, flerrors.Kind(r.Err))
			assert.NoFileExists(t, reqs[i].Output)
			continue
		}
		require.NoError(t, r.Err, "request %d", i)
		assert.Len(t, testhelpers.ReadLines(t, reqs[i].Output), wantCounts[i], "request %d", i)
	}
}

func TestSearchAsync(t *testing.T) {
	defer testhelpers.VerifyNoLeaks(t)()
	e := fallbackEngine(t)
	dir := t.TempDir()
	input := testhelpers.WriteLines(t, dir, "fruit.txt", testhelpers.TestData.Fruit)

	ch := e.SearchAsync(context.Background(), Request{
		Input:   input,
		Output:  filepath.Join(dir, "out.txt"),
		Pattern: "grape",
	})

	r, ok := <-ch
	require.True(t, ok)
	require.NoError(t, r.Err)
	assert.True(t, r.Outcome.Success)

	_, ok = <-ch
	assert.False(t, ok, "channel closes after one result")
}
