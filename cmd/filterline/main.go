package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/filterline/internal/config"
	"github.com/standardbeagle/filterline/internal/debug"
	"github.com/standardbeagle/filterline/internal/search"
	"github.com/standardbeagle/filterline/internal/version"
)

// Exit statuses
const (
	exitRejected = 1 // check: result too large to open
	exitFailure  = 2 // any command that could not do its job
)

// loadConfigWithOverrides loads configuration and applies global flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
		}
		root = abs
	}

	cfg, err := config.LoadWithRoot(c.String("config"), root)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("rg-path") {
		cfg.Ripgrep.Path = c.String("rg-path")
	}
	if c.IsSet("shell-mode") {
		cfg.Ripgrep.ShellMode = c.Bool("shell-mode")
	}
	if c.IsSet("cache-dir") {
		cfg.Cache.Root = c.String("cache-dir")
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// engineFromContext loads configuration and builds the engine for a command
func engineFromContext(c *cli.Context) (*search.Engine, *config.Config, error) {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, nil, err
	}
	return search.NewFromConfig(cfg), cfg, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "filterline",
		Usage:                  "Filter the lines of files and directory trees into result files",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (.kdl or .toml); default discovers .filterline.kdl or filterline.toml",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Directory to discover project config in (default: current directory)",
			},
			&cli.StringFlag{
				Name:  "rg-path",
				Usage: "Path to the ripgrep executable (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "shell-mode",
				Usage: "Run ripgrep through the platform shell with output redirection",
			},
			&cli.StringFlag{
				Name:  "cache-dir",
				Usage: "Directory for pattern files and results (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "debug-log",
				Usage: "Write debug output to a log file in the temp directory",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug-log") {
				path, err := debug.InitDebugLogFile()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.ErrWriter, "Debug log: %s\n", path)
			} else if debug.FromEnv() {
				debug.SetDebugOutput(c.App.ErrWriter)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return debug.CloseDebugLog()
		},
		Commands: []*cli.Command{
			searchCommand(),
			watchCommand(),
			validateCommand(),
			checkCommand(),
			contextCommand(),
			statusCommand(),
			cleanCommand(),
			mcpCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}
