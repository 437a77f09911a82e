package runner

import (
	"context"
	"fmt"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/discovery"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// TestCaseRunner runs the tests of one case: one test for standard and
// execution-error cases, one test per data row for delay-enumerated cases.
type TestCaseRunner struct {
	state    *runState
	testCase *types.TestCase
	factory  InstanceFactory
}

func (r *TestCaseRunner) Run(ctx context.Context, agg *aggregator.Aggregator) (types.RunSummary, error) {
	tc := r.testCase
	ids := caseIDs(tc)
	var disposables []any

	return r.state.bracket(ctx, scope{
		level: ScopeTestCase,
		ids:   ids,
		hooks: r.state.hooks.TestCase,
		starting: &messages.TestCaseStarting{
			IDs:         ids,
			DisplayName: tc.DisplayName,
			SkipReason:  tc.SkipReason(),
			Traits:      tc.Traits,
			Source:      tc.Source,
		},
		finished: func(s types.RunSummary) messages.Message {
			return &messages.TestCaseFinished{IDs: ids, Summary: s}
		},
		cleanupFailure: func(f messages.FailureInfo) messages.Message {
			return &messages.TestCaseCleanupFailure{IDs: ids, Failure: f}
		},
	}, agg, func(ctx context.Context) (types.RunSummary, error) {
		switch {
		case tc.Kind == types.CaseKindExecutionError:
			return r.runExecutionError(ctx, agg)
		case tc.Kind == types.CaseKindDelayEnumerated && tc.SkipReason() == "":
			var err error
			var summary types.RunSummary
			summary, disposables, err = r.runDelayEnumerated(ctx, agg)
			return summary, err
		default:
			return r.runStandard(ctx, agg)
		}
	}, func(ctx context.Context, cleanup *aggregator.Aggregator) {
		for _, d := range disposables {
			if err := disposeValue(ctx, d); err != nil {
				cleanup.Add(fmt.Errorf("disposing test data %T: %w", d, err))
			}
		}
	})
}

func (r *TestCaseRunner) runStandard(ctx context.Context, agg *aggregator.Aggregator) (types.RunSummary, error) {
	tc := r.testCase
	method := tc.Method()
	testAgg := agg.Clone()
	if len(tc.GenericTypes) > 0 && !testAgg.HasErrors() {
		testAgg.Run(func() error {
			bound, err := method.MakeGeneric(tc.GenericTypes)
			if err == nil {
				method = bound
			}
			return err
		})
	}
	test := newTest(tc, tc.DisplayName, 0)
	return r.runTest(ctx, testAgg, test, method, tc.Arguments, tc.SkipReason())
}

func (r *TestCaseRunner) runExecutionError(ctx context.Context, agg *aggregator.Aggregator) (types.RunSummary, error) {
	tc := r.testCase
	testAgg := agg.Clone()
	testAgg.Add(&types.ExecutionError{Msg: tc.ErrorMessage})
	return r.runTest(ctx, testAgg, newTest(tc, tc.DisplayName, 0), tc.Method(), nil, "")
}

// runDelayEnumerated enumerates the theory data now and runs one test per
// row, in enumeration order. A data source that fails is reported as a
// single failed test. Row values that need disposal are returned so the
// case can release them once its tests finished.
func (r *TestCaseRunner) runDelayEnumerated(ctx context.Context, agg *aggregator.Aggregator) (types.RunSummary, []any, error) {
	tc := r.testCase
	method := tc.Method()

	if agg.HasErrors() {
		summary, err := r.runTest(ctx, agg.Clone(), newTest(tc, tc.DisplayName, 0), method, nil, "")
		return summary, nil, err
	}

	rows, err := discovery.Enumerate(ctx, method)
	if err == nil && len(rows) == 0 {
		err = &types.DefinitionError{Msg: fmt.Sprintf("No data found for %s", tc.TestMethod.FullName())}
	}
	if err != nil {
		r.state.log.Debug("Theory data enumeration failed", "case", tc.DisplayName, "err", err)
		testAgg := agg.Clone()
		testAgg.Add(err)
		summary, err := r.runTest(ctx, testAgg, newTest(tc, tc.DisplayName, 0), method, nil, "")
		return summary, nil, err
	}

	var (
		summary     types.RunSummary
		disposables []any
	)
	for i, row := range rows {
		for _, v := range row.Arguments {
			if disposable(v) {
				disposables = append(disposables, v)
			}
		}

		testAgg := agg.Clone()
		bound, genericTypes, err := discovery.ResolveMethod(method, row.Arguments)
		if err != nil {
			testAgg.Add(err)
			bound = method
		}
		args := discovery.CoerceArguments(bound.Parameters(), row.Arguments)
		display := discovery.FormatDisplayName(tc.DisplayName, bound.Parameters(), args, genericTypes)

		s, err := r.runTest(ctx, testAgg, newTest(tc, display, i), bound, args, row.SkipReason)
		summary.Aggregate(s)
		if err != nil {
			return summary, disposables, err
		}
	}
	return summary, disposables, nil
}

func (r *TestCaseRunner) runTest(ctx context.Context, agg *aggregator.Aggregator, test *types.Test, method types.MethodInfo, args []any, skipReason string) (types.RunSummary, error) {
	runner := &TestRunner{
		state:      r.state,
		test:       test,
		method:     method,
		args:       args,
		skipReason: skipReason,
		factory:    r.factory,
	}
	return runner.Run(ctx, agg)
}
