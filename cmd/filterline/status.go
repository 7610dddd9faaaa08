package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/filterline/internal/cache"
	"github.com/standardbeagle/filterline/internal/ripgrep"
	"github.com/standardbeagle/filterline/internal/version"
)

// StatusReport represents the status for JSON output
type StatusReport struct {
	Version          string   `json:"version"`
	RipgrepAvailable bool     `json:"ripgrep_available"`
	RipgrepPath      string   `json:"ripgrep_path"`
	RipgrepVersion   string   `json:"ripgrep_version,omitempty"`
	ShellMode        bool     `json:"shell_mode"`
	CacheRoot        string   `json:"cache_root"`
	Results          int      `json:"results"`
	ResultBytes      int64    `json:"result_bytes"`
	PatternFiles     int      `json:"pattern_files"`
	ConfigSources    []string `json:"config_sources"`
}

// statusCommand reports the search strategy in effect and what the cache holds
func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show ripgrep availability, cache usage and config sources",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			engine, cfg, err := engineFromContext(c)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}

			locator := engine.Locator()
			report := StatusReport{
				Version:          version.Version,
				RipgrepAvailable: locator.Available(),
				ShellMode:        cfg.Ripgrep.ShellMode,
				CacheRoot:        engine.Allocator().Root(),
				ConfigSources:    cfg.Sources,
			}
			if path, err := locator.Resolve(); err == nil {
				report.RipgrepPath = path
				ctx, stop := signalContext()
				defer stop()
				if v, err := locator.Version(ctx); err == nil {
					report.RipgrepVersion = v
				}
			} else if p := locator.Path(); p != "" {
				report.RipgrepPath = p
			} else {
				report.RipgrepPath = ripgrep.DefaultToolName()
			}

			usage, err := newJanitor(engine.Allocator(), cfg.Cache.MaxAgeHours).Usage()
			if err != nil {
				return failure(err)
			}
			report.Results = usage.Results
			report.ResultBytes = usage.ResultBytes
			report.PatternFiles = usage.PatternFiles

			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "filterline %s\n", report.Version)
			if report.RipgrepAvailable {
				fmt.Fprintf(w, "Strategy:    ripgrep (%s)\n", report.RipgrepPath)
				if report.RipgrepVersion != "" {
					fmt.Fprintf(w, "Ripgrep:     %s\n", report.RipgrepVersion)
				}
			} else {
				fmt.Fprintf(w, "Strategy:    fallback scanner (%s not found; directories unsupported)\n", report.RipgrepPath)
			}
			fmt.Fprintf(w, "Cache:       %s\n", report.CacheRoot)
			fmt.Fprintf(w, "Results:     %d (%s)\n", report.Results, formatBytes(report.ResultBytes))
			fmt.Fprintf(w, "Patterns:    %d files\n", report.PatternFiles)
			if len(report.ConfigSources) == 0 {
				fmt.Fprintln(w, "Config:      defaults")
			}
			for _, src := range report.ConfigSources {
				fmt.Fprintf(w, "Config:      %s\n", src)
			}
			return nil
		},
	}
}

// cleanCommand removes results from the cache
func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Remove cached results and stale pattern files",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Remove every result, including recent ones",
			},
			&cli.StringSliceFlag{
				Name:  "keep",
				Usage: "Result file to keep (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			engine, cfg, err := engineFromContext(c)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			janitor := newJanitor(engine.Allocator(), cfg.Cache.MaxAgeHours)

			var report cache.SweepReport
			if c.Bool("all") {
				report, err = janitor.Clear()
			} else {
				report, err = janitor.Sweep(c.StringSlice("keep"))
			}
			fmt.Fprintf(c.App.Writer, "Removed %d result(s) and %d pattern file(s), kept %d\n",
				report.ResultsRemoved, report.PatternsRemoved, report.Kept)
			if err != nil {
				return failure(err)
			}
			return nil
		},
	}
}

func newJanitor(alloc *cache.Allocator, maxAgeHours int) *cache.Janitor {
	return cache.NewJanitor(alloc, time.Duration(maxAgeHours)*time.Hour)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
