package ripgrep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/filterline/internal/cache"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
	"github.com/standardbeagle/filterline/internal/pattern"
	"github.com/standardbeagle/filterline/internal/types"
	"github.com/standardbeagle/filterline/testhelpers"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		inv  Invocation
		want []string
	}{
		{
			name: "literal file",
			inv:  Invocation{PatternFile: "p.txt", InputPath: "in.log", ShowFilenameHeader: true},
			want: []string{"--no-config", "--color=never", "--text", "--fixed-strings", "--file", "p.txt", "--no-filename", "--", "in.log"},
		},
		{
			name: "regex with every flag on a file",
			inv: Invocation{
				RegexMode: true, IgnoreCase: true, InvertMatch: true,
				PatternFile: "p.txt", InputPath: "in.log", ContextLines: 3,
				Globs: []string{"*.log"},
			},
			want: []string{"--no-config", "--color=never", "--text", "--ignore-case", "--invert-match", "--file", "p.txt", "--no-filename", "--context", "3", "--", "in.log"},
		},
		{
			name: "directory with heading and globs",
			inv: Invocation{
				RegexMode: true, PatternFile: "p.txt", InputPath: "logs",
				InputIsDir: true, ShowFilenameHeader: true, Globs: []string{"**/*.log", "", "!*.gz"},
			},
			want: []string{"--no-config", "--color=never", "--file", "p.txt", "--heading", "--glob", "**/*.log", "--glob", "!*.gz", "--", "logs"},
		},
		{
			name: "directory without heading",
			inv:  Invocation{PatternFile: "p.txt", InputPath: "logs", InputIsDir: true},
			want: []string{"--no-config", "--color=never", "--fixed-strings", "--file", "p.txt", "--no-filename", "--", "logs"},
		},
		{
			name: "input starting with a dash",
			inv:  Invocation{RegexMode: true, PatternFile: "p.txt", InputPath: "-weird"},
			want: []string{"--no-config", "--color=never", "--text", "--file", "p.txt", "--no-filename", "--", "-weird"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildArgs(tt.inv))
		})
	}
}

func TestBuildArgsIsDeterministic(t *testing.T) {
	inv := Invocation{RegexMode: true, IgnoreCase: true, PatternFile: "p", InputPath: "d", InputIsDir: true, ContextLines: 2}
	assert.Equal(t, BuildArgs(inv), BuildArgs(inv))
}

func TestQuoteForShell(t *testing.T) {
	tests := []struct {
		in      string
		posix   string
		windows string
	}{
		{"plain", `'plain'`, `"plain"`},
		{"with space", `'with space'`, `"with space"`},
		{"it's", `'it'\''s'`, `"it's"`},
		{`say "hi"`, `'say "hi"'`, `"say ""hi"""`},
		{"$HOME;rm -rf|x", `'$HOME;rm -rf|x'`, `"$HOME;rm -rf|x"`},
		{"", `''`, `""`},
		{`C:\logs\50%off%\a.log`, `'C:\logs\50%off%\a.log'`, `"C:\logs\50"^%"off"^%"\a.log"`},
		{`C:\logs\%TEMP%`, `'C:\logs\%TEMP%'`, `"C:\logs\\"^%"TEMP"^%""`},
		{`C:\out dir\`, `'C:\out dir\'`, `"C:\out dir\\"`},
		{`a\"b`, `'a\"b'`, `"a\\""b"`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.posix, QuoteForShell(tt.in, "linux"))
			assert.Equal(t, tt.posix, QuoteForShell(tt.in, "darwin"))
			assert.Equal(t, tt.windows, QuoteForShell(tt.in, "windows"))
		})
	}
}

func TestCommandLine(t *testing.T) {
	line := CommandLine("/usr/bin/rg", []string{"--file", "/tmp/p 1.txt", "--", "in.log"}, "/tmp/out's", "linux")
	assert.Equal(t, `'/usr/bin/rg' '--file' '/tmp/p 1.txt' '--' 'in.log' > '/tmp/out'\''s'`, line)
}

func TestLocator(t *testing.T) {
	calls := 0
	l := NewLocator("")
	l.lookPath = func(name string) (string, error) {
		calls++
		if name == DefaultToolName() {
			return "/opt/bin/rg", nil
		}
		return "", errors.New("not found")
	}

	path, err := l.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "/opt/bin/rg", path)
	assert.True(t, l.Available())
	assert.Equal(t, 1, calls, "answer should be cached")

	l.SetPath("")
	assert.True(t, l.Available())
	assert.Equal(t, 1, calls, "same path keeps the cache")

	l.SetPath("ripgrep")
	assert.False(t, l.Available())
	assert.Equal(t, 2, calls)
	_, err = l.Resolve()
	assert.Equal(t, flerrors.ErrorTypeToolUnavailable, flerrors.Kind(err))

	l.Invalidate()
	l.Available()
	assert.Equal(t, 3, calls)
}

func TestLocatorExplicitPath(t *testing.T) {
	testhelpers.RequirePOSIX(t)
	dir := t.TempDir()

	l := NewLocator(filepath.Join(dir, "missing"))
	assert.False(t, l.Available())

	l.SetPath(dir)
	_, err := l.Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a regular file")

	plain := filepath.Join(dir, "rg-plain")
	require.NoError(t, os.WriteFile(plain, []byte("x"), 0o644))
	l.SetPath(plain)
	_, err = l.Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not executable")

	fake := testhelpers.FakeTool(t, "exit 0")
	l.SetPath(fake)
	path, err := l.Resolve()
	require.NoError(t, err)
	assert.Equal(t, fake, path)
}

func TestLocatorVersion(t *testing.T) {
	fake := testhelpers.FakeTool(t, `echo "ripgrep 14.1.0"; echo "features:+pcre2"`)
	version, err := NewLocator(fake).Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ripgrep 14.1.0", version)
}

type fixture struct {
	alloc  *cache.Allocator
	input  string
	output string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	return fixture{
		alloc:  cache.NewAllocator(filepath.Join(dir, "cache")),
		input:  testhelpers.WriteLines(t, dir, "input.txt", testhelpers.TestData.Fruit),
		output: filepath.Join(dir, "out.txt"),
	}
}

func compile(t *testing.T, raw string, opts types.SearchOptions) *pattern.Compiled {
	t.Helper()
	c, err := pattern.Compile(raw, opts)
	require.NoError(t, err)
	return c
}

func patternFiles(t *testing.T, alloc *cache.Allocator) []string {
	t.Helper()
	entries, err := os.ReadDir(alloc.PatternsDir())
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRunWritesPatternFileAndCleansUp(t *testing.T) {
	defer testhelpers.VerifyNoLeaks(t)()
	f := newFixture(t)
	fake := testhelpers.FakeTool(t, testhelpers.FakeToolCatPatterns)

	opts := types.SearchOptions{RegexMode: true, MatchPatternSelf: true}
	iv := NewInvoker(NewLocator(fake), f.alloc)
	outcome, err := iv.Run(context.Background(), f.input, f.output, compile(t, "a+b", opts), opts)
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, 0, outcome.ExitCode())
	assert.Equal(t, types.StrategyRipgrep, outcome.Strategy)
	assert.Equal(t, []string{"a+b", `a\+b`}, testhelpers.ReadLines(t, f.output))
	assert.Empty(t, patternFiles(t, f.alloc))
}

func TestRunExitStatuses(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		shell     bool
		success   bool
		exit      int
		kind      flerrors.ErrorType
		outputSet bool
	}{
		{"no matches is success", "exit 1", false, true, 1, "", true},
		{"warning on success", `echo "rg: some/file: Permission denied" >&2; echo hit`, false, true, 0, "", true},
		{"regex error", `echo "regex parse error" >&2; exit 2`, false, false, 2, flerrors.ErrorTypeToolFailure, false},
		{"shell cannot run tool", "exit 127", true, false, 127, flerrors.ErrorTypeProcessLaunch, false},
		{"shell no matches", "exit 1", true, true, 1, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			fake := testhelpers.FakeTool(t, tt.body)

			iv := NewInvoker(NewLocator(fake), f.alloc)
			iv.ShellMode = tt.shell
			outcome, err := iv.Run(context.Background(), f.input, f.output, compile(t, "apple", types.SearchOptions{}), types.SearchOptions{})

			assert.Equal(t, tt.success, outcome.Success)
			require.NotNil(t, outcome.ExitStatus)
			assert.Equal(t, tt.exit, *outcome.ExitStatus)
			if tt.kind == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.kind, flerrors.Kind(err))
			}
			if tt.outputSet {
				assert.FileExists(t, f.output)
			} else {
				assert.NoFileExists(t, f.output)
			}
			assert.Empty(t, patternFiles(t, f.alloc))
		})
	}
}

func TestRunSurfacesStderr(t *testing.T) {
	f := newFixture(t)
	fake := testhelpers.FakeTool(t, `echo "rg: warning" >&2; echo apple`)

	outcome, err := NewInvoker(NewLocator(fake), f.alloc).Run(context.Background(), f.input, f.output, compile(t, "apple", types.SearchOptions{}), types.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "rg: warning\n", outcome.Stderr)
	assert.Equal(t, []string{"apple"}, testhelpers.ReadLines(t, f.output))
}

func TestRunPartialDirectoryResult(t *testing.T) {
	unreadable := `echo "rg: logs/secret.log: Permission denied (os error 13)" >&2; `
	tests := []struct {
		name    string
		body    string
		dir     bool
		success bool
	}{
		{"directory with matches keeps them", unreadable + `echo "logs/a.log"; echo "apple"; exit 2`, true, true},
		{"directory without matches fails", unreadable + "exit 2", true, false},
		{"single file with output fails", unreadable + `echo "apple"; exit 2`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			input := f.input
			if tt.dir {
				input = filepath.Dir(f.input)
			}
			fake := testhelpers.FakeTool(t, tt.body)

			outcome, err := NewInvoker(NewLocator(fake), f.alloc).Run(context.Background(), input, f.output, compile(t, "apple", types.SearchOptions{}), types.SearchOptions{})
			require.NotNil(t, outcome.ExitStatus)
			assert.Equal(t, ExitError, *outcome.ExitStatus)
			assert.Equal(t, tt.success, outcome.Success)
			assert.Contains(t, outcome.Stderr, "Permission denied")
			if tt.success {
				require.NoError(t, err)
				assert.Equal(t, []string{"logs/a.log", "apple"}, testhelpers.ReadLines(t, f.output))
			} else {
				assert.Equal(t, flerrors.ErrorTypeToolFailure, flerrors.Kind(err))
				assert.NoFileExists(t, f.output)
			}
			assert.Empty(t, patternFiles(t, f.alloc))
		})
	}
}

func TestRunShellModeQuotesPaths(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "it's a dir")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	input := testhelpers.WriteLines(t, dir, "in $file.txt", []string{"x"})
	output := filepath.Join(dir, `out "quoted".txt`)
	alloc := cache.NewAllocator(filepath.Join(dir, "cache"))

	// Echo the last argument, which must arrive as one intact word
	fake := testhelpers.FakeTool(t, `for a in "$@"; do last="$a"; done; echo "$last"`)
	iv := NewInvoker(NewLocator(fake), alloc)
	iv.ShellMode = true

	outcome, err := iv.Run(context.Background(), input, output, compile(t, "x", types.SearchOptions{}), types.SearchOptions{})
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, []string{input}, testhelpers.ReadLines(t, output))
}

func TestRunToolUnavailable(t *testing.T) {
	f := newFixture(t)
	l := NewLocator(filepath.Join(t.TempDir(), "no-such-rg"))

	outcome, err := NewInvoker(l, f.alloc).Run(context.Background(), f.input, f.output, compile(t, "apple", types.SearchOptions{}), types.SearchOptions{})
	assert.False(t, outcome.Success)
	assert.Nil(t, outcome.ExitStatus)
	assert.Equal(t, flerrors.ErrorTypeToolUnavailable, flerrors.Kind(err))
	assert.NoFileExists(t, f.output)
}

func TestRunMissingInput(t *testing.T) {
	f := newFixture(t)
	fake := testhelpers.FakeTool(t, "exit 0")

	_, err := NewInvoker(NewLocator(fake), f.alloc).Run(context.Background(), f.input+".gone", f.output, compile(t, "apple", types.SearchOptions{}), types.SearchOptions{})
	assert.Equal(t, flerrors.ErrorTypeFileNotFound, flerrors.Kind(err))
	assert.NoFileExists(t, f.output)
	assert.Empty(t, patternFiles(t, f.alloc))
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	fake := testhelpers.FakeTool(t, "exec sleep 10")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	outcome, err := NewInvoker(NewLocator(fake), f.alloc).Run(ctx, f.input, f.output, compile(t, "apple", types.SearchOptions{}), types.SearchOptions{})
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.True(t, outcome.Cancelled)
	assert.False(t, outcome.Success)
	assert.Equal(t, flerrors.ErrorTypeCancelled, flerrors.Kind(err))
	assert.NoFileExists(t, f.output)
	assert.Empty(t, patternFiles(t, f.alloc))
}

func TestRunRealRipgrep(t *testing.T) {
	rg := testhelpers.RequireRipgrep(t)
	f := newFixture(t)
	iv := NewInvoker(NewLocator(rg), f.alloc)

	opts := types.SearchOptions{IgnoreCase: true}
	outcome, err := iv.Run(context.Background(), f.input, f.output, compile(t, "apple", opts), opts)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, []string{"apple", "Apple Pie"}, testhelpers.ReadLines(t, f.output))

	opts.InvertMatch = true
	outcome, err = iv.Run(context.Background(), f.input, f.output, compile(t, "apple", opts), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"banana", "grape"}, testhelpers.ReadLines(t, f.output))

	opts = types.SearchOptions{RegexMode: true}
	outcome, err = iv.Run(context.Background(), f.input, f.output, compile(t, "zzz", opts), opts)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, 1, outcome.ExitCode())
	assert.Equal(t, []string{}, testhelpers.ReadLines(t, f.output))
}

func TestRunRealRipgrepDirectoryHeading(t *testing.T) {
	rg := testhelpers.RequireRipgrep(t)
	dir := t.TempDir()
	root := filepath.Join(dir, "tree")
	testhelpers.WriteTree(t, root, testhelpers.GetLogTree())
	output := filepath.Join(dir, "out.txt")
	iv := NewInvoker(NewLocator(rg), cache.NewAllocator(filepath.Join(dir, "cache")))

	opts := types.SearchOptions{ShowFilenameHeader: true}
	_, err := iv.Run(context.Background(), root, output, compile(t, "ERROR", opts), opts)
	require.NoError(t, err)

	text, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(text), filepath.Join(root, "app", "server.log")+"\n")
	assert.Contains(t, string(text), filepath.Join(root, "misc", "notes.md")+"\nERROR in heading\n")
	assert.Equal(t, 3, strings.Count(string(text), "ERROR"))
}
