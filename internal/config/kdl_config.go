package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"

	"github.com/standardbeagle/filterline/internal/debug"
)

// LoadKDL reads .filterline.kdl from dir on top of the defaults.
// It returns nil, nil when the file does not exist.
func LoadKDL(dir string) (*Config, error) {
	cfg := Defaults()
	found, err := applyKDLFile(cfg, filepath.Join(dir, KDLFileName))
	if err != nil || !found {
		return nil, err
	}
	return cfg, nil
}

// applyKDLFile applies the KDL file at path to cfg, reporting whether it existed
func applyKDLFile(cfg *Config, path string) (bool, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := parseKDL(cfg, string(content)); err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Cache.Root != "" && !filepath.IsAbs(cfg.Cache.Root) {
		// Relative to the directory holding the config file
		cfg.Cache.Root = filepath.Clean(filepath.Join(filepath.Dir(path), cfg.Cache.Root))
	}
	cfg.Sources = append(cfg.Sources, path)
	debug.Printf("Applied config %s\n", path)
	return true, nil
}

// parseKDL walks the document and overrides only the keys it sets
func parseKDL(cfg *Config, content string) error {
	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "ripgrep":
			for _, cn := range n.Children { // ripgrep { path "/usr/bin/rg" }
				assignSimpleString(cn, "path", func(v string) { cfg.Ripgrep.Path = v })
				assignSimpleBool(cn, "shell_mode", func(v bool) { cfg.Ripgrep.ShellMode = v })
			}
		case "search":
			for _, cn := range n.Children {
				assignSimpleBool(cn, "regex", func(v bool) { cfg.Search.Regex = v })
				assignSimpleBool(cn, "ignore_case", func(v bool) { cfg.Search.IgnoreCase = v })
				assignSimpleBool(cn, "smart_case", func(v bool) { cfg.Search.SmartCase = v })
				assignSimpleBool(cn, "invert", func(v bool) { cfg.Search.Invert = v })
				assignSimpleBool(cn, "match_self", func(v bool) { cfg.Search.MatchSelf = v })
				assignSimpleBool(cn, "show_filename", func(v bool) { cfg.Search.ShowFilename = v })
				switch nodeName(cn) {
				case "context_lines":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.ContextLines = v
					}
				case "globs":
					cfg.Search.Globs = mergeGlobs(cfg.Search.Globs, collectStringArgs(cn))
				}
			}
		case "safety":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "factor":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Safety.Factor = v
					}
				case "heap_budget":
					if v, ok := sizeArg(cn); ok {
						cfg.Safety.HeapBudget = v
					}
				case "system_fraction":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Safety.SystemFraction = v
					}
				}
			}
		case "cache":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Cache.Root = v })
				if nodeName(cn) == "max_age_hours" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.MaxAgeHours = v
					}
				}
			}
		case "performance":
			for _, cn := range n.Children {
				if nodeName(cn) == "max_concurrent_searches" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.MaxConcurrentSearches = v
					}
				}
			}
		case "watch":
			for _, cn := range n.Children {
				if nodeName(cn) == "debounce_ms" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				}
			}
		case "context":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "lines":
					if v, ok := firstIntArg(cn); ok {
						cfg.Context.Lines = v
					}
				case "max_result_size":
					if v, ok := sizeArg(cn); ok {
						cfg.Context.MaxResultSize = v
					}
				}
			}
		default:
			debug.Printf("Ignoring unknown config section %q\n", nodeName(n))
		}
	}
	return nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		debug.Printf("WARNING: invalid float value for '%s' in KDL config, expected number but got %T\n", nodeName(n), n.Arguments[0].Value)
		return 0, false
	}
}

// sizeArg accepts either a byte count or a size string like "50MB"
func sizeArg(n *document.Node) (int64, bool) {
	if v, ok := firstIntArg(n); ok {
		return int64(v), true
	}
	if s, ok := firstStringArg(n); ok {
		if sz, err := parseSize(s); err == nil {
			return sz, true
		}
		debug.Printf("WARNING: invalid size %q for '%s' in KDL config\n", s, nodeName(n))
	}
	return 0, false
}

// collectStringArgs reads inline arguments, or child nodes in block form
// (globs { "*.log"; "!*.gz" })
func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				// In block form the node name itself is the string value
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

func assignSimpleBool(n *document.Node, target string, set func(bool)) {
	if nodeName(n) == target {
		if b, ok := firstBoolArg(n); ok {
			set(b)
		}
	}
}

// parseSize handles size strings like "10MB", "500KB", "1GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	num, err := strconv.ParseInt(strings.TrimSpace(numStr), 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}

// ParseSize is parseSize for flag values
func ParseSize(s string) (int64, error) {
	return parseSize(s)
}
