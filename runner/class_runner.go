package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// TestClassRunner runs the cases of one class. It owns the class fixtures,
// selects the constructor, orders the cases and runs one method runner per
// method.
type TestClassRunner struct {
	state              *runState
	class              *types.TestClass
	cases              []*types.TestCase
	collectionFixtures *fixtureSet
}

func (r *TestClassRunner) Run(ctx context.Context, agg *aggregator.Aggregator) (types.RunSummary, error) {
	ids := classIDs(r.class)
	ctx, span := r.state.tracer.Start(ctx, fmt.Sprintf("class %s", r.class.Class.Name()))
	defer span.End()

	fixtures := newFixtureSet("Class")
	diag := &diagnosticSink{state: r.state, ids: ids}

	return r.state.bracket(ctx, scope{
		level:    ScopeClass,
		ids:      ids,
		hooks:    r.state.hooks.Class,
		starting: &messages.TestClassStarting{IDs: ids, ClassName: r.class.Class.Name()},
		finished: func(s types.RunSummary) messages.Message {
			return &messages.TestClassFinished{IDs: ids, Summary: s}
		},
		cleanupFailure: func(f messages.FailureInfo) messages.Message {
			return &messages.TestClassCleanupFailure{IDs: ids, Failure: f}
		},
	}, agg, func(ctx context.Context) (types.RunSummary, error) {
		for _, attr := range types.FindAttributes[types.ClassFixtureAttribute](r.class.Class.Attributes()) {
			agg.Add(fixtures.create(ctx, attr.Fixture, func(p types.ParameterInfo) (any, bool) {
				if p.Type == types.DiagnosticSinkType {
					return diag, true
				}
				return r.collectionFixtures.lookup(p.Type)
			}))
		}

		factory := r.instanceFactory(agg, fixtures, diag)
		ordered := orderCases(r.state.log, diag, r.orderer(), r.cases)

		groups := groupBy(ordered, byMethod)
		work := make([]scopeWork, len(groups))
		for i, cases := range groups {
			runner := &TestMethodRunner{state: r.state, method: cases[0].TestMethod, cases: cases, factory: factory}
			work[i] = func() (types.RunSummary, error) {
				return runner.Run(ctx, agg.Clone())
			}
		}
		if r.state.parallelizeTestCases && len(work) > 1 {
			return runGroup(work, r.state.maxParallelThreads)
		}
		return runSequential(work)
	}, func(ctx context.Context, cleanup *aggregator.Aggregator) {
		r.state.log.Debug("Disposing class fixtures", "class", r.class.Class.Name(), "fixtures", fixtures.count())
		fixtures.dispose(ctx, cleanup)
	})
}

func (r *TestClassRunner) orderer() types.TestCaseOrderer {
	if attr, ok := types.FindAttribute[types.TestCaseOrdererAttribute](r.class.Class.Attributes()); ok && attr.Orderer != nil {
		return attr.Orderer
	}
	return r.state.orderer
}

// instanceFactory selects the single public constructor and resolves its
// arguments from the class fixtures, the collection fixtures, the test
// output helper and the diagnostic sink. Problems are recorded in agg and
// fail every test of the class.
func (r *TestClassRunner) instanceFactory(agg *aggregator.Aggregator, fixtures *fixtureSet, diag types.DiagnosticSink) InstanceFactory {
	class := r.class.Class
	factory := InstanceFactory{Class: class}
	if r.allStatic() {
		return factory
	}

	var public []types.ConstructorInfo
	for _, c := range class.Constructors() {
		if c.IsPublic() {
			public = append(public, c)
		}
	}
	switch len(public) {
	case 0:
		agg.Add(&types.TestClassError{Msg: "A test class must have a public constructor."})
		return factory
	case 1:
	default:
		agg.Add(&types.TestClassError{Msg: "A test class may only define a single public constructor."})
		return factory
	}

	ctor := public[0]
	args, unresolved := resolveArgs(ctor.Parameters(), func(p types.ParameterInfo) (any, bool) {
		switch p.Type {
		case types.TestOutputType:
			return outputSlot{}, true
		case types.DiagnosticSinkType:
			return diag, true
		}
		if v, ok := fixtures.lookup(p.Type); ok {
			return v, true
		}
		return r.collectionFixtures.lookup(p.Type)
	})
	if len(unresolved) > 0 {
		agg.Add(&types.TestClassError{Msg: "The following constructor parameters did not have matching fixture data: " + strings.Join(unresolved, ", ")})
		return factory
	}
	factory.Constructor = ctor
	factory.Arguments = args
	return factory
}

func (r *TestClassRunner) allStatic() bool {
	for _, tc := range r.cases {
		if !tc.Method().IsStatic() {
			return false
		}
	}
	return true
}
