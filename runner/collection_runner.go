package runner

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// TestCollectionRunner runs the classes of one collection. It owns the
// collection fixtures, which every class of the collection shares.
type TestCollectionRunner struct {
	state      *runState
	collection *types.TestCollection
	cases      []*types.TestCase
}

func (r *TestCollectionRunner) Run(ctx context.Context, agg *aggregator.Aggregator) (types.RunSummary, error) {
	ids := collectionIDs(r.collection)
	ctx, span := r.state.tracer.Start(ctx, fmt.Sprintf("collection %s", r.collection.DisplayName))
	defer span.End()

	fixtures := newFixtureSet("Collection")
	diag := &diagnosticSink{state: r.state, ids: ids}
	definition, _ := r.collection.DefinitionAttribute()

	return r.state.bracket(ctx, scope{
		level:    ScopeCollection,
		ids:      ids,
		hooks:    r.state.hooks.Collection,
		starting: &messages.TestCollectionStarting{IDs: ids, DisplayName: r.collection.DisplayName},
		finished: func(s types.RunSummary) messages.Message {
			return &messages.TestCollectionFinished{IDs: ids, Summary: s}
		},
		cleanupFailure: func(f messages.FailureInfo) messages.Message {
			return &messages.TestCollectionCleanupFailure{IDs: ids, Failure: f}
		},
	}, agg, func(ctx context.Context) (types.RunSummary, error) {
		if r.collection.Definition != nil {
			for _, attr := range types.FindAttributes[types.CollectionFixtureAttribute](r.collection.Definition.Attributes()) {
				err := fixtures.create(ctx, attr.Fixture, func(p types.ParameterInfo) (any, bool) {
					if p.Type == types.DiagnosticSinkType {
						return diag, true
					}
					return fixtures.lookup(p.Type)
				})
				if err != nil {
					// Every class still runs so that each reports the failure on its own tests.
					r.state.log.Error("Collection fixture failed", "collection", r.collection.DisplayName, "err", err)
					diag.Diagnostic("Collection fixture failure in '%s': %v", r.collection.DisplayName, err)
					agg.Add(err)
				}
			}
		}

		classes := groupBy(r.cases, byClass)
		work := make([]scopeWork, len(classes))
		for i, cases := range classes {
			runner := &TestClassRunner{
				state:              r.state,
				class:              cases[0].TestClass(),
				cases:              cases,
				collectionFixtures: fixtures,
			}
			work[i] = func() (types.RunSummary, error) {
				return runner.Run(ctx, agg.Clone())
			}
		}
		if definition.ParallelizeClasses && len(work) > 1 {
			return runGroup(work, r.state.maxParallelThreads)
		}
		return runSequential(work)
	}, func(ctx context.Context, cleanup *aggregator.Aggregator) {
		fixtures.dispose(ctx, cleanup)
	})
}
