package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/filterline/internal/debug"
)

// SearchBatch runs the requests with at most MaxConcurrent in flight.
// Each result carries its own error; one failure does not stop the others.
// Results are in request order.
func (e *Engine) SearchBatch(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(e.maxConcurrent)
	for i, req := range reqs {
		g.Go(func() error {
			outcome, err := e.Search(ctx, req.Input, req.Output, req.Pattern, req.Options)
			if err != nil {
				debug.LogSearch("batch %s: %v", req, err)
			}
			results[i] = Result{Request: req, Outcome: outcome, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// SearchAsync starts a search and delivers its result on the returned
// channel, which receives exactly one value and is then closed.
func (e *Engine) SearchAsync(ctx context.Context, req Request) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		outcome, err := e.Search(ctx, req.Input, req.Output, req.Pattern, req.Options)
		ch <- Result{Request: req, Outcome: outcome, Err: err}
	}()
	return ch
}
