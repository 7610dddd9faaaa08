package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/filterline/internal/config"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
	"github.com/standardbeagle/filterline/internal/search"
	"github.com/standardbeagle/filterline/internal/types"
	"github.com/standardbeagle/filterline/pkg/pathutil"
)

// matchFlags are shared by search and watch
func matchFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Result file (default: a new file in the cache)",
		},
		&cli.BoolFlag{
			Name:    "regex",
			Aliases: []string{"e"},
			Usage:   "Treat the pattern as a regular expression",
		},
		&cli.BoolFlag{
			Name:    "invert-match",
			Aliases: []string{"v"},
			Usage:   "Keep lines that do NOT match (grep -v)",
		},
		&cli.BoolFlag{
			Name:    "ignore-case",
			Aliases: []string{"i"},
			Usage:   "Case-insensitive matching",
		},
		&cli.BoolFlag{
			Name:    "smart-case",
			Aliases: []string{"S"},
			Usage:   "Ignore case when the pattern has no upper-case letter",
		},
		&cli.BoolFlag{
			Name:  "match-self",
			Usage: "In regex mode also keep lines containing the pattern text itself",
		},
		&cli.BoolFlag{
			Name:  "heading",
			Usage: "Group directory results under file headings (use --heading=false to disable)",
			Value: true,
		},
		&cli.IntFlag{
			Name:    "context",
			Aliases: []string{"C"},
			Usage:   "Lines of context around each kept line",
		},
		&cli.StringSliceFlag{
			Name:    "glob",
			Aliases: []string{"g"},
			Usage:   "Directory searches: include/exclude glob, repeatable (-g '*.log' -g '!*.gz')",
		},
	}
}

// optionsFromFlags starts from the configured defaults and applies the flags
// the user actually set
func optionsFromFlags(c *cli.Context, cfg *config.Config) types.SearchOptions {
	opts := cfg.SearchOptions()
	if c.IsSet("regex") {
		opts.RegexMode = c.Bool("regex")
	}
	if c.IsSet("invert-match") {
		opts.InvertMatch = c.Bool("invert-match")
	}
	if c.IsSet("ignore-case") {
		opts.IgnoreCase = c.Bool("ignore-case")
	}
	if c.IsSet("smart-case") {
		opts.SmartCase = c.Bool("smart-case")
	}
	if c.IsSet("match-self") {
		opts.MatchPatternSelf = c.Bool("match-self")
	}
	if c.IsSet("heading") {
		opts.ShowFilenameHeader = c.Bool("heading")
	}
	if c.IsSet("context") {
		opts.ContextLineCount = c.Int("context")
	}
	if globs := c.StringSlice("glob"); len(globs) > 0 {
		opts.Globs = append(opts.Globs, globs...)
	}
	return opts
}

// signalContext is cancelled by Ctrl-C or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// failure turns an engine error into the short message and exit status
func failure(err error) error {
	return cli.Exit(flerrors.UserMessage(err), exitFailure)
}

type searchReport struct {
	Success    bool     `json:"success"`
	OutputPath string   `json:"output_path"`
	Strategy   string   `json:"strategy"`
	ExitStatus *int     `json:"exit_status,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Digest     string   `json:"digest,omitempty"`
	SafeToOpen bool     `json:"safe_to_open"`
}

func searchCommand() *cli.Command {
	flags := append(matchFlags(),
		&cli.BoolFlag{
			Name:    "print",
			Aliases: []string{"p"},
			Usage:   "Print the result to stdout after writing it",
		},
		&cli.BoolFlag{
			Name:    "json",
			Aliases: []string{"j"},
			Usage:   "Report the outcome as JSON",
		},
		&cli.Float64Flag{
			Name:  "safety-factor",
			Usage: "Memory multiplier used for --print and safe_to_open (default from config)",
		},
	)

	return &cli.Command{
		Name:      "search",
		Aliases:   []string{"s"},
		Usage:     "Filter a file or directory into a result file",
		ArgsUsage: "<pattern> <file-or-directory>",
		Flags:     flags,
		Action:    runSearch,
	}
}

func runSearch(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("search requires <pattern> and <file-or-directory>", exitFailure)
	}
	pattern, input := c.Args().Get(0), c.Args().Get(1)

	engine, cfg, err := engineFromContext(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	opts := optionsFromFlags(c, cfg)

	ctx, stop := signalContext()
	defer stop()

	var outcome types.Outcome
	if output := c.String("output"); output != "" {
		outcome, err = engine.Search(ctx, input, output, pattern, opts)
	} else {
		outcome, err = engine.Filter(ctx, input, pattern, opts)
	}
	if err != nil {
		return failure(err)
	}

	factor := cfg.Safety.Factor
	if c.IsSet("safety-factor") {
		factor = c.Float64("safety-factor")
	}
	safe := engine.CanOpenSafely(outcome.OutputPath, factor)

	for _, w := range outcome.Warnings {
		fmt.Fprintf(c.App.ErrWriter, "warning: %s\n", w)
	}

	if c.Bool("json") {
		report := searchReport{
			Success:    outcome.Success,
			OutputPath: outcome.OutputPath,
			Strategy:   string(outcome.Strategy),
			ExitStatus: outcome.ExitStatus,
			Warnings:   outcome.Warnings,
			SafeToOpen: safe,
		}
		if outcome.Digest != 0 {
			report.Digest = fmt.Sprintf("%016x", outcome.Digest)
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if c.Bool("print") {
		if !safe {
			report, err := engine.Evaluate(outcome.OutputPath, factor)
			if err == nil {
				err = report.Err()
			}
			return failure(err)
		}
		return printFile(c.App.Writer, outcome.OutputPath)
	}

	fmt.Fprintln(c.App.Writer, pathutil.Display(outcome.OutputPath))
	return nil
}

func printFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return failure(flerrors.NewFileError("open", path, err))
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return failure(flerrors.NewFileError("read", path, err))
	}
	return nil
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check that a pattern is usable",
		ArgsUsage: "<pattern>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "regex",
				Aliases: []string{"e"},
				Usage:   "Check as a regular expression",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("validate requires <pattern>", exitFailure)
			}
			engine := search.New(search.Options{})
			if err := engine.CheckPattern(c.Args().First(), c.Bool("regex")); err != nil {
				return failure(err)
			}
			fmt.Fprintln(c.App.Writer, "valid")
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Decide whether a result file can be opened without exhausting memory",
		ArgsUsage: "<result-file>",
		Flags: []cli.Flag{
			&cli.Float64Flag{
				Name:  "factor",
				Usage: "Memory multiplier applied to the file size (default from config)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("check requires <result-file>", exitFailure)
			}
			engine, cfg, err := engineFromContext(c)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}
			factor := cfg.Safety.Factor
			if c.IsSet("factor") {
				factor = c.Float64("factor")
			}

			report, err := engine.Evaluate(c.Args().First(), factor)
			if err != nil {
				return failure(err)
			}
			if err := report.Err(); err != nil {
				return cli.Exit(flerrors.UserMessage(err), exitRejected)
			}
			fmt.Fprintf(c.App.Writer, "safe: %d bytes x %.2f = %d bytes estimated\n",
				report.Size, report.Factor, report.Estimated)
			return nil
		},
	}
}

func contextCommand() *cli.Command {
	return &cli.Command{
		Name:      "context",
		Usage:     "Show a line from a result in its source file with surrounding lines",
		ArgsUsage: "<result-file> <line>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.Exit("context requires <result-file> and <line>", exitFailure)
			}
			engine, _, err := engineFromContext(c)
			if err != nil {
				return cli.Exit(err.Error(), exitFailure)
			}

			ctx, stop := signalContext()
			defer stop()

			outcome, err := engine.Context(ctx, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return failure(err)
			}
			fmt.Fprintln(c.App.Writer, pathutil.Display(outcome.OutputPath))
			return nil
		},
	}
}
