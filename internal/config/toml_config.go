package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/standardbeagle/filterline/internal/debug"
)

// tomlConfig mirrors the KDL keys. Pointers tell "unset" from a zero value,
// so a TOML file overrides only what it names.
type tomlConfig struct {
	Ripgrep struct {
		Path      *string `toml:"path"`
		ShellMode *bool   `toml:"shell_mode"`
	} `toml:"ripgrep"`
	Search struct {
		Regex        *bool    `toml:"regex"`
		IgnoreCase   *bool    `toml:"ignore_case"`
		SmartCase    *bool    `toml:"smart_case"`
		Invert       *bool    `toml:"invert"`
		MatchSelf    *bool    `toml:"match_self"`
		ShowFilename *bool    `toml:"show_filename"`
		ContextLines *int     `toml:"context_lines"`
		Globs        []string `toml:"globs"`
	} `toml:"search"`
	Safety struct {
		Factor         *float64 `toml:"factor"`
		HeapBudget     *string  `toml:"heap_budget"`
		SystemFraction *float64 `toml:"system_fraction"`
	} `toml:"safety"`
	Cache struct {
		Root        *string `toml:"root"`
		MaxAgeHours *int    `toml:"max_age_hours"`
	} `toml:"cache"`
	Performance struct {
		MaxConcurrentSearches *int `toml:"max_concurrent_searches"`
	} `toml:"performance"`
	Watch struct {
		DebounceMs *int `toml:"debounce_ms"`
	} `toml:"watch"`
	Context struct {
		Lines         *int    `toml:"lines"`
		MaxResultSize *string `toml:"max_result_size"`
	} `toml:"context"`
}

// applyTOMLFile applies the TOML file at path to cfg, reporting whether it existed
func applyTOMLFile(cfg *Config, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := parseTOML(cfg, data); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Cache.Root != "" && !filepath.IsAbs(cfg.Cache.Root) {
		cfg.Cache.Root = filepath.Clean(filepath.Join(filepath.Dir(path), cfg.Cache.Root))
	}
	cfg.Sources = append(cfg.Sources, path)
	debug.Printf("Applied config %s\n", path)
	return true, nil
}

func parseTOML(cfg *Config, data []byte) error {
	var tc tomlConfig
	if err := toml.Unmarshal(data, &tc); err != nil {
		return fmt.Errorf("failed to parse TOML config: %w", err)
	}

	setString(&cfg.Ripgrep.Path, tc.Ripgrep.Path)
	setBool(&cfg.Ripgrep.ShellMode, tc.Ripgrep.ShellMode)

	setBool(&cfg.Search.Regex, tc.Search.Regex)
	setBool(&cfg.Search.IgnoreCase, tc.Search.IgnoreCase)
	setBool(&cfg.Search.SmartCase, tc.Search.SmartCase)
	setBool(&cfg.Search.Invert, tc.Search.Invert)
	setBool(&cfg.Search.MatchSelf, tc.Search.MatchSelf)
	setBool(&cfg.Search.ShowFilename, tc.Search.ShowFilename)
	setInt(&cfg.Search.ContextLines, tc.Search.ContextLines)
	if len(tc.Search.Globs) > 0 {
		cfg.Search.Globs = mergeGlobs(cfg.Search.Globs, tc.Search.Globs)
	}

	if tc.Safety.Factor != nil {
		cfg.Safety.Factor = *tc.Safety.Factor
	}
	if tc.Safety.SystemFraction != nil {
		cfg.Safety.SystemFraction = *tc.Safety.SystemFraction
	}
	if tc.Safety.HeapBudget != nil {
		sz, err := parseSize(*tc.Safety.HeapBudget)
		if err != nil {
			return fmt.Errorf("safety.heap_budget: %w", err)
		}
		cfg.Safety.HeapBudget = sz
	}

	setString(&cfg.Cache.Root, tc.Cache.Root)
	setInt(&cfg.Cache.MaxAgeHours, tc.Cache.MaxAgeHours)
	setInt(&cfg.Performance.MaxConcurrentSearches, tc.Performance.MaxConcurrentSearches)
	setInt(&cfg.Watch.DebounceMs, tc.Watch.DebounceMs)
	setInt(&cfg.Context.Lines, tc.Context.Lines)
	if tc.Context.MaxResultSize != nil {
		sz, err := parseSize(*tc.Context.MaxResultSize)
		if err != nil {
			return fmt.Errorf("context.max_result_size: %w", err)
		}
		cfg.Context.MaxResultSize = sz
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
