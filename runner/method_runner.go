package runner

import (
	"context"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// TestMethodRunner runs the cases of one method sequentially, in the order
// handed over by the class runner.
type TestMethodRunner struct {
	state   *runState
	method  *types.TestMethod
	cases   []*types.TestCase
	factory InstanceFactory
}

func (r *TestMethodRunner) Run(ctx context.Context, agg *aggregator.Aggregator) (types.RunSummary, error) {
	ids := methodIDs(r.method)
	return r.state.bracket(ctx, scope{
		level:    ScopeMethod,
		ids:      ids,
		hooks:    r.state.hooks.Method,
		starting: &messages.TestMethodStarting{IDs: ids, MethodName: r.method.Method.Name()},
		finished: func(s types.RunSummary) messages.Message {
			return &messages.TestMethodFinished{IDs: ids, Summary: s}
		},
		cleanupFailure: func(f messages.FailureInfo) messages.Message {
			return &messages.TestMethodCleanupFailure{IDs: ids, Failure: f}
		},
	}, agg, func(ctx context.Context) (types.RunSummary, error) {
		var summary types.RunSummary
		for _, tc := range r.cases {
			if ctx.Err() != nil {
				break
			}
			runner := &TestCaseRunner{state: r.state, testCase: tc, factory: r.factory}
			s, err := runner.Run(ctx, agg.Clone())
			summary.Aggregate(s)
			if err != nil {
				return summary, err
			}
		}
		return summary, nil
	}, nil)
}
