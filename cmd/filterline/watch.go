package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/filterline/internal/cache"
	"github.com/standardbeagle/filterline/internal/debug"
	flerrors "github.com/standardbeagle/filterline/internal/errors"
	"github.com/standardbeagle/filterline/internal/pattern"
	"github.com/standardbeagle/filterline/internal/watch"
	"github.com/standardbeagle/filterline/pkg/pathutil"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Aliases:   []string{"w"},
		Usage:     "Re-run a filter into the same result file whenever the input changes",
		ArgsUsage: "<pattern> <file-or-directory>",
		Flags:     matchFlags(),
		Action:    runWatch,
	}
}

func runWatch(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.Exit("watch requires <pattern> and <file-or-directory>", exitFailure)
	}
	raw, input := c.Args().Get(0), c.Args().Get(1)

	engine, cfg, err := engineFromContext(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	opts := optionsFromFlags(c, cfg)

	// Reject bad patterns before waiting on the first change
	if _, err := pattern.Compile(raw, opts); err != nil {
		return failure(err)
	}

	output := c.String("output")
	if output == "" {
		output, err = engine.Allocator().ResultFile(raw, opts.InvertMatch)
		if err != nil {
			return failure(err)
		}
		abs, err := filepath.Abs(input)
		if err == nil {
			err = cache.WriteSource(output, abs)
		}
		if err != nil {
			debug.LogWatch("could not record source for %s: %v", output, err)
		}
	}

	run := func(ctx context.Context, changed []string) error {
		outcome, err := engine.Search(ctx, input, output, raw, opts)
		if err != nil {
			fmt.Fprintln(c.App.ErrWriter, flerrors.UserMessage(err))
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s  %s (%d changed)\n",
			time.Now().Format("15:04:05"), pathutil.Display(outcome.OutputPath), len(changed))
		return nil
	}

	ctx, stop := signalContext()
	defer stop()

	// First pass before any change so the result exists right away.
	// run has already printed the reason.
	if err := run(ctx, nil); err != nil {
		return cli.Exit("", exitFailure)
	}

	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond
	ignore := []string{output, engine.Allocator().Root()}
	w, err := watch.New(input, debounce, opts.Globs, ignore, run)
	if err != nil {
		return failure(err)
	}
	if err := w.Start(); err != nil {
		return failure(err)
	}
	fmt.Fprintf(c.App.ErrWriter, "Watching %s (Ctrl-C to stop)\n", pathutil.Display(input))

	<-ctx.Done()
	if err := w.Stop(); err != nil {
		return failure(err)
	}

	stats := w.Stats()
	fmt.Fprintf(c.App.ErrWriter, "Stopped after %d run(s), %d error(s)\n", stats.Runs, stats.Errors)
	return nil
}
