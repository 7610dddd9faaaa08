package testhelpers

import (
	"path/filepath"
	"testing"

	"github.com/standardbeagle/filterline/internal/config"
)

// TestConfigBuilder provides a fluent API for building test configs with safe defaults.
// The cache lives in a per-test directory and ripgrep is pointed at a path that
// does not exist, so the fallback scanner runs unless WithRipgrep says otherwise.
// Usage:
//
//	cfg := testhelpers.NewTestConfigBuilder(t).
//		WithRipgrep(testhelpers.RequireRipgrep(t)).
//		WithGlobs("*.log").
//		Build()
type TestConfigBuilder struct {
	cacheRoot    string
	ripgrepPath  string
	globs        []string
	contextLines int
	maxContext   int64
}

// NewTestConfigBuilder creates a config builder rooted in t's temp directory
func NewTestConfigBuilder(t *testing.T) *TestConfigBuilder {
	t.Helper()
	dir := t.TempDir()
	return &TestConfigBuilder{
		cacheRoot:    filepath.Join(dir, "cache"),
		ripgrepPath:  filepath.Join(dir, "no-such-rg"),
		contextLines: config.DefaultContextLines,
	}
}

// WithRipgrep uses the ripgrep executable at path
func (b *TestConfigBuilder) WithRipgrep(path string) *TestConfigBuilder {
	b.ripgrepPath = path
	return b
}

// WithCacheRoot replaces the per-test cache directory
func (b *TestConfigBuilder) WithCacheRoot(root string) *TestConfigBuilder {
	b.cacheRoot = root
	return b
}

// WithGlobs adds default directory globs
func (b *TestConfigBuilder) WithGlobs(globs ...string) *TestConfigBuilder {
	b.globs = append(b.globs, globs...)
	return b
}

// WithContext sets the context window and the largest result it accepts
func (b *TestConfigBuilder) WithContext(lines int, maxResultSize int64) *TestConfigBuilder {
	b.contextLines = lines
	b.maxContext = maxResultSize
	return b
}

// Build creates the final test config with all settings
func (b *TestConfigBuilder) Build() *config.Config {
	cfg := config.Defaults()
	cfg.Ripgrep.Path = b.ripgrepPath
	cfg.Cache.Root = b.cacheRoot
	cfg.Search.Globs = append(cfg.Search.Globs, b.globs...)
	cfg.Context.Lines = b.contextLines
	if b.maxContext > 0 {
		cfg.Context.MaxResultSize = b.maxContext
	}
	cfg.Performance.MaxConcurrentSearches = 2
	return cfg
}
