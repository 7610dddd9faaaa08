package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/filterline/internal/types"
	"github.com/standardbeagle/filterline/testhelpers"
)

// Both strategies must agree byte for byte on single-file input
func TestStrategyParity(t *testing.T) {
	rg := testhelpers.RequireRipgrep(t)
	external := newEngine(t, rg)
	fallback := fallbackEngine(t)
	require.True(t, external.Locator().Available())

	dir := t.TempDir()
	lines := append(append([]string{}, testhelpers.TestData.AppLog...), testhelpers.TestData.Symbols...)
	lines = append(lines, testhelpers.TestData.Fruit...)
	lines = append(lines, "", "ÉCOLE école", "trailing space ")
	lines = append(lines, "café", "٣٤", "a\u00a0b", "naïve word", "Ⓐ circled")
	input := testhelpers.WriteLines(t, dir, "mixed.txt", lines)

	cases := []struct {
		pattern string
		opts    types.SearchOptions
	}{
		{"apple", types.SearchOptions{}},
		{"apple", types.SearchOptions{IgnoreCase: true}},
		{"apple", types.SearchOptions{IgnoreCase: true, InvertMatch: true}},
		{"école", types.SearchOptions{IgnoreCase: true}},
		{"$4.99 (USD)", types.SearchOptions{}},
		{`^a.*e$`, types.SearchOptions{RegexMode: true}},
		{`ERROR|WARN`, types.SearchOptions{RegexMode: true}},
		{`\d{2}:\d{2}:0[3-5]`, types.SearchOptions{RegexMode: true, InvertMatch: true}},
		{"a+b", types.SearchOptions{RegexMode: true, MatchPatternSelf: true}},
		{"a+b", types.SearchOptions{RegexMode: true, MatchPatternSelf: true, InvertMatch: true}},
		{"(abc", types.SearchOptions{RegexMode: true, MatchPatternSelf: true}},
		{"Regex A+B", types.SearchOptions{RegexMode: true, MatchPatternSelf: true, IgnoreCase: true}},
		{"error", types.SearchOptions{SmartCase: true}},
		{"ERROR", types.SearchOptions{ContextLineCount: 1}},
		{"INFO", types.SearchOptions{ContextLineCount: 2, InvertMatch: true}},
		{"grape", types.SearchOptions{ContextLineCount: 50}},
		{`^\w+$`, types.SearchOptions{RegexMode: true}},
		{`^\d+$`, types.SearchOptions{RegexMode: true}},
		{`a\sb`, types.SearchOptions{RegexMode: true}},
		{`ï\b`, types.SearchOptions{RegexMode: true}},
		{`\bword\b`, types.SearchOptions{RegexMode: true, IgnoreCase: true}},
		{`^\W`, types.SearchOptions{RegexMode: true, InvertMatch: true}},
		{`^[\w\s]+$`, types.SearchOptions{RegexMode: true}},
		{`^\w`, types.SearchOptions{RegexMode: true, ContextLineCount: 1}},
	}

	for i, tc := range cases {
		t.Run(fmt.Sprintf("%d_%s", i, tc.pattern), func(t *testing.T) {
			ext := filepath.Join(dir, fmt.Sprintf("rg-%d.txt", i))
			fb := filepath.Join(dir, fmt.Sprintf("fb-%d.txt", i))

			extOutcome, err := external.Search(context.Background(), input, ext, tc.pattern, tc.opts)
			require.NoError(t, err)
			fbOutcome, err := fallback.Search(context.Background(), input, fb, tc.pattern, tc.opts)
			require.NoError(t, err)

			want, err := os.ReadFile(ext)
			require.NoError(t, err)
			got, err := os.ReadFile(fb)
			require.NoError(t, err)
			assert.Equal(t, string(want), string(got))
			assert.Equal(t, extOutcome.Digest, fbOutcome.Digest)
		})
	}
}

func TestDirectorySearchWithHeadings(t *testing.T) {
	rg := testhelpers.RequireRipgrep(t)
	e := newEngine(t, rg)
	root := t.TempDir()
	testhelpers.WriteTree(t, root, testhelpers.GetLogTree())
	output := filepath.Join(t.TempDir(), "out.txt")

	opts := types.SearchOptions{ShowFilenameHeader: true, Globs: []string{"**/*.log"}}
	outcome, err := e.Search(context.Background(), root, output, "ERROR", opts)
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	got := testhelpers.ReadLines(t, output)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "server.log")
	assert.NotContains(t, got, "ERROR in heading", "notes.md is excluded by the glob")
}
