package runner

import (
	"errors"
	"runtime"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// scopeWork is a child runner invocation whose summary is folded into the
// parent's.
type scopeWork func() (types.RunSummary, error)

// runSequential runs work one after the other, stopping at the first error.
func runSequential(work []scopeWork) (types.RunSummary, error) {
	var summary types.RunSummary
	for _, w := range work {
		s, err := w()
		summary.Aggregate(s)
		if err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// runGroup runs work on an errgroup bounded by limit. Every item runs to
// completion; errors are joined.
func runGroup(work []scopeWork, limit int) (types.RunSummary, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		summary types.RunSummary
		errs    []error
	)
	g.SetLimit(limit)
	for _, w := range work {
		g.Go(func() error {
			s, err := w()
			mu.Lock()
			defer mu.Unlock()
			summary.Aggregate(s)
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return summary, errors.Join(errs...)
}

// runPool runs work on a bounded conc pool. Every item runs to completion;
// errors are joined.
func runPool(work []scopeWork, limit int) (types.RunSummary, error) {
	var (
		mu   sync.Mutex
		errs []error
	)
	p := pool.NewWithResults[types.RunSummary]().WithMaxGoroutines(limit)
	for _, w := range work {
		p.Go(func() types.RunSummary {
			s, err := w()
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return s
		})
	}
	var summary types.RunSummary
	for _, s := range p.Wait() {
		summary.Aggregate(s)
	}
	return summary, errors.Join(errs...)
}

// concurrency resolves a configured thread limit. Zero means one worker
// per CPU, capped at MaxReasonableConcurrency.
func concurrency(configured int) int {
	if configured > 0 {
		return configured
	}
	return min(runtime.NumCPU(), MaxReasonableConcurrency)
}
