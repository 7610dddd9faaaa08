package scanner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flerrors "github.com/standardbeagle/filterline/internal/errors"
	"github.com/standardbeagle/filterline/internal/pattern"
	"github.com/standardbeagle/filterline/internal/types"
	"github.com/standardbeagle/filterline/testhelpers"
)

func filterString(t *testing.T, input, raw string, opts types.SearchOptions) string {
	t.Helper()
	c, err := pattern.Compile(raw, opts)
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = Filter(context.Background(), strings.NewReader(input), &out, c, opts)
	require.NoError(t, err)
	return out.String()
}

func TestFilterScenarios(t *testing.T) {
	fruit := "apple\nbanana\nApple Pie\ngrape\n"

	tests := []struct {
		name    string
		pattern string
		opts    types.SearchOptions
		want    string
	}{
		{"literal ignore case", "apple", types.SearchOptions{IgnoreCase: true}, "apple\nApple Pie\n"},
		{"literal ignore case inverted", "apple", types.SearchOptions{IgnoreCase: true, InvertMatch: true}, "banana\ngrape\n"},
		{"literal case sensitive", "apple", types.SearchOptions{}, "apple\n"},
		{"anchored regex", "^a.*e$", types.SearchOptions{RegexMode: true}, "apple\n"},
		{"regex ignore case", "^a.*e$", types.SearchOptions{RegexMode: true, IgnoreCase: true}, "apple\nApple Pie\n"},
		{"no matches", "kiwi", types.SearchOptions{}, ""},
		{"invert everything", "kiwi", types.SearchOptions{InvertMatch: true}, fruit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filterString(t, fruit, tt.pattern, tt.opts))
		})
	}
}

func TestFilterSelfMatchUnion(t *testing.T) {
	input := strings.Join(testhelpers.TestData.Symbols, "\n") + "\n"
	opts := types.SearchOptions{RegexMode: true, MatchPatternSelf: true}

	got := filterString(t, input, "a+b", opts)
	assert.Equal(t, "regex a+b literally\naaab matches a+b as a regex\n", got)

	// Without self-match only the regex hit survives
	got = filterString(t, input, "a+b", types.SearchOptions{RegexMode: true})
	assert.Equal(t, "aaab matches a+b as a regex\n", got)

	opts.InvertMatch = true
	got = filterString(t, input, "a+b", opts)
	assert.NotContains(t, got, "regex a+b literally")
	assert.Contains(t, got, "plain line")
}

func TestFilterPartition(t *testing.T) {
	lines := testhelpers.TestData.AppLog
	input := strings.Join(lines, "\n") + "\n"

	for _, raw := range []string{"ERROR", "info", "10:00:0", "nothing-here"} {
		t.Run(raw, func(t *testing.T) {
			kept := filterString(t, input, raw, types.SearchOptions{IgnoreCase: true})
			dropped := filterString(t, input, raw, types.SearchOptions{IgnoreCase: true, InvertMatch: true})

			var union []string
			for _, part := range []string{kept, dropped} {
				if part != "" {
					union = append(union, strings.Split(strings.TrimSuffix(part, "\n"), "\n")...)
				}
			}
			assert.ElementsMatch(t, lines, union)
		})
	}
}

func TestFilterContext(t *testing.T) {
	input := "a\nb\nc\nMATCH d\ne\nf\ng\nh\nMATCH i\nj\n"

	tests := []struct {
		name    string
		context int
		invert  bool
		want    string
	}{
		{"none", 0, false, "MATCH d\nMATCH i\n"},
		{"one line with separator", 1, false, "c\nMATCH d\ne\n--\nh\nMATCH i\nj\n"},
		{"adjacent groups merge", 2, false, "b\nc\nMATCH d\ne\nf\ng\nh\nMATCH i\nj\n"},
		{"window larger than file", 50, false, input},
		{"inverted", 1, true, "a\nb\nc\nMATCH d\ne\nf\ng\nh\nMATCH i\nj\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := types.SearchOptions{ContextLineCount: tt.context, InvertMatch: tt.invert}
			assert.Equal(t, tt.want, filterString(t, input, "MATCH", opts))
		})
	}
}

func TestFilterContextAtEdges(t *testing.T) {
	input := "MATCH 1\nx\ny\nz\nMATCH 2\n"
	got := filterString(t, input, "MATCH", types.SearchOptions{ContextLineCount: 1})
	assert.Equal(t, "MATCH 1\nx\n--\nz\nMATCH 2\n", got)
}

func TestFilterLineEndings(t *testing.T) {
	// Final line without terminator still gets one
	assert.Equal(t, "last apple\n", filterString(t, "pear\nlast apple", "apple", types.SearchOptions{}))

	// CR stays part of the line, so $ does not match before it
	crlf := "apple\r\nbanana\r\n"
	assert.Equal(t, "apple\r\n", filterString(t, crlf, "apple", types.SearchOptions{}))
	assert.Equal(t, "", filterString(t, crlf, "e$", types.SearchOptions{RegexMode: true}))

	// Blank lines are lines
	assert.Equal(t, "\n\n", filterString(t, "\nx\n\n", "x", types.SearchOptions{InvertMatch: true}))

	assert.Equal(t, "", filterString(t, "", "x", types.SearchOptions{InvertMatch: true}))
}

func TestFilterStripsLeadingBOM(t *testing.T) {
	input := "\xEF\xBB\xBFapple\napple\n"
	assert.Equal(t, "apple\napple\n", filterString(t, input, "^apple$", types.SearchOptions{RegexMode: true}))
}

func TestFilterLongLines(t *testing.T) {
	long := strings.Repeat("x", 3*readBufferSize) + "needle" + strings.Repeat("y", readBufferSize)
	input := "short\n" + long + "\nother\n"

	got := filterString(t, input, "needle", types.SearchOptions{})
	assert.Equal(t, long+"\n", got)
}

func TestFilterRegexStateDoesNotLeakBetweenLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteString("id=42 ok\n")
	}
	got := filterString(t, b.String(), `id=\d+`, types.SearchOptions{RegexMode: true})
	assert.Equal(t, 1000, strings.Count(got, "\n"))
}

func TestFilterCancelled(t *testing.T) {
	c, err := pattern.Compile("x", types.SearchOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err = Filter(ctx, strings.NewReader("x\nx\n"), &out, c, types.SearchOptions{})
	assert.Equal(t, flerrors.ErrorTypeCancelled, flerrors.Kind(err))
	assert.Empty(t, out.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("no space left on device") }

func TestFilterWriteError(t *testing.T) {
	c, err := pattern.Compile("x", types.SearchOptions{})
	require.NoError(t, err)

	_, err = Filter(context.Background(), strings.NewReader("x\n"), failingWriter{}, c, types.SearchOptions{})
	assert.Error(t, err)
}

func TestScan(t *testing.T) {
	defer testhelpers.VerifyNoLeaks(t)()
	dir := t.TempDir()
	input := testhelpers.WriteLines(t, dir, "fruit.txt", testhelpers.TestData.Fruit)
	output := filepath.Join(dir, "out.txt")

	opts := types.SearchOptions{IgnoreCase: true}
	c, err := pattern.Compile("apple", opts)
	require.NoError(t, err)

	outcome, err := New().Scan(context.Background(), input, output, c, opts)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Nil(t, outcome.ExitStatus)
	assert.Equal(t, types.StrategyFallback, outcome.Strategy)
	assert.Equal(t, int64(2), outcome.LinesWritten)
	assert.Equal(t, []string{"apple", "Apple Pie"}, testhelpers.ReadLines(t, output))
}

func TestScanErrors(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.txt")
	c, err := pattern.Compile("x", types.SearchOptions{})
	require.NoError(t, err)

	_, err = New().Scan(context.Background(), filepath.Join(dir, "missing"), output, c, types.SearchOptions{})
	assert.Equal(t, flerrors.ErrorTypeFileNotFound, flerrors.Kind(err))
	assert.NoFileExists(t, output)

	_, err = New().Scan(context.Background(), dir, output, c, types.SearchOptions{})
	assert.Equal(t, flerrors.ErrorTypeToolUnavailable, flerrors.Kind(err))
	assert.NoFileExists(t, output)

	input := testhelpers.WriteLines(t, dir, "in.txt", []string{"x"})
	_, err = New().Scan(context.Background(), input, filepath.Join(dir, "no-such-dir", "out.txt"), c, types.SearchOptions{})
	assert.Error(t, err)
}

func TestScanCancelledRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	input := testhelpers.WriteLines(t, dir, "in.txt", []string{"x", "y"})
	output := filepath.Join(dir, "out.txt")
	c, err := pattern.Compile("x", types.SearchOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := New().Scan(ctx, input, output, c, types.SearchOptions{})
	assert.True(t, outcome.Cancelled)
	assert.False(t, outcome.Success)
	assert.Equal(t, flerrors.ErrorTypeCancelled, flerrors.Kind(err))
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}
