package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/filterline/internal/types"
)

const (
	// KDLFileName is looked for in the home directory and the project directory
	KDLFileName = ".filterline.kdl"
	// TOMLFileName is used for the project when no KDL file exists
	TOMLFileName = "filterline.toml"

	DefaultSafetyFactor       = 2.0
	DefaultSystemFraction     = 0.9
	DefaultCacheMaxAgeHours   = 24
	DefaultWatchDebounceMs    = 300
	DefaultContextLines       = 500
	DefaultMaxContextResultMB = 50
)

type Config struct {
	Version     int
	Ripgrep     Ripgrep
	Search      Search
	Safety      Safety
	Cache       Cache
	Performance Performance
	Watch       Watch
	Context     Context

	// Files applied on top of the defaults, in order
	Sources []string
}

type Ripgrep struct {
	Path      string // Empty means look up rg on PATH
	ShellMode bool   // Run through the platform shell with output redirection
}

// Search holds the default match-mode flags for new searches
type Search struct {
	Regex        bool
	IgnoreCase   bool
	SmartCase    bool
	Invert       bool
	MatchSelf    bool
	ShowFilename bool
	ContextLines int
	Globs        []string // Directory searches only, doublestar syntax
}

type Safety struct {
	Factor         float64 // Multiplier on result size when estimating memory
	HeapBudget     int64   // Bytes; 0 uses the runtime memory limit, if any
	SystemFraction float64 // Share of free system memory a result may use
}

type Cache struct {
	Root        string
	MaxAgeHours int // Pattern files older than this are swept
}

type Performance struct {
	MaxConcurrentSearches int // 0 = auto-detect (NumCPU-1)
}

type Watch struct {
	DebounceMs int
}

// Context configures the "show this line in its source" lookup
type Context struct {
	Lines         int
	MaxResultSize int64
}

// Defaults returns the configuration used when no file sets a value
func Defaults() *Config {
	return &Config{
		Version: 1,
		Search: Search{
			ShowFilename: true,
		},
		Safety: Safety{
			Factor:         DefaultSafetyFactor,
			SystemFraction: DefaultSystemFraction,
		},
		Cache: Cache{
			MaxAgeHours: DefaultCacheMaxAgeHours,
		},
		Watch: Watch{
			DebounceMs: DefaultWatchDebounceMs,
		},
		Context: Context{
			Lines:         DefaultContextLines,
			MaxResultSize: DefaultMaxContextResultMB * 1024 * 1024,
		},
	}
}

// userHomeDir is swapped out by tests
var userHomeDir = os.UserHomeDir

func Load(projectDir string) (*Config, error) {
	return LoadWithRoot("", projectDir)
}

// LoadWithRoot builds the configuration in layers: defaults, then the global
// ~/.filterline.kdl, then either an explicit file at path or the project's
// .filterline.kdl (falling back to filterline.toml) in rootDir.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	cfg := Defaults()

	// Step 1: global base config
	if home, err := userHomeDir(); err == nil {
		if _, err := applyKDLFile(cfg, filepath.Join(home, KDLFileName)); err != nil {
			return nil, err
		}
	}

	// Step 2: explicit file wins over discovery
	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// Step 3: project config
	found, err := applyKDLFile(cfg, filepath.Join(searchDir, KDLFileName))
	if err != nil {
		return nil, err
	}
	if !found {
		if _, err := applyTOMLFile(cfg, filepath.Join(searchDir, TOMLFileName)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// applyFile loads path as KDL or TOML by extension
func applyFile(cfg *Config, path string) error {
	var found bool
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		found, err = applyTOMLFile(cfg, path)
	default:
		found, err = applyKDLFile(cfg, path)
	}
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("config file %s does not exist", path)
	}
	return nil
}

// mergeGlobs appends extra globs to base, dropping duplicates
func mergeGlobs(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, g := range list {
			if g == "" || seen[g] {
				continue
			}
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}

// SearchOptions turns the search defaults into per-invocation options
func (c *Config) SearchOptions() types.SearchOptions {
	return types.SearchOptions{
		RegexMode:          c.Search.Regex,
		MatchPatternSelf:   c.Search.MatchSelf,
		InvertMatch:        c.Search.Invert,
		IgnoreCase:         c.Search.IgnoreCase,
		SmartCase:          c.Search.SmartCase,
		ShowFilenameHeader: c.Search.ShowFilename,
		ContextLineCount:   c.Search.ContextLines,
		Globs:              append([]string(nil), c.Search.Globs...),
	}
}
