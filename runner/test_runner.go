package runner

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/metrics"
	"github.com/ethereum-optimism/infra/op-testkit/types"
	"github.com/ethereum-optimism/infra/op-testkit/uniqueid"
)

// TestRunner reports the outcome of one test: TestStarting, then one of
// TestPassed, TestFailed or TestSkipped, then TestFinished.
type TestRunner struct {
	state      *runState
	test       *types.Test
	method     types.MethodInfo
	args       []any
	skipReason string
	factory    InstanceFactory
}

// Run runs the test. Failures already recorded in agg fail the test without
// invoking it. Nothing is published when ctx is cancelled before the test
// starts; once started, the test always publishes its finished event.
func (r *TestRunner) Run(ctx context.Context, agg *aggregator.Aggregator) (types.RunSummary, error) {
	if ctx.Err() != nil {
		return types.RunSummary{}, nil
	}
	ids := testIDs(r.test)
	tc := r.test.TestCase
	if err := r.state.publish(&messages.TestStarting{
		IDs:         ids,
		DisplayName: r.test.DisplayName,
		Explicit:    tc.Explicit,
		Timeout:     tc.Timeout,
	}); err != nil {
		return types.RunSummary{}, err
	}

	hooks := r.state.hooks.Test
	if hooks.AfterStarting != nil {
		agg.RunContext(ctx, hooks.AfterStarting)
	}

	var (
		summary = types.RunSummary{Total: 1}
		output  string
		result  types.TestStatus
		err     error
	)
	if r.skipReason != "" {
		summary.Skipped = 1
		result = types.TestStatusSkip
		err = r.state.publish(&messages.TestSkipped{IDs: ids, Reason: r.skipReason})
	} else {
		out := newTestOutput(r.state, ids)
		invoker := &TestInvoker{
			state:   r.state,
			test:    r.test,
			ids:     ids,
			method:  r.method,
			args:    r.args,
			factory: r.factory,
			hooks:   beforeAfterHooks(tc),
			output:  out,
		}
		summary.Time, err = invoker.Run(ctx, agg)
		out.close()
		output = out.Output()
		if err == nil {
			result, err = r.publishResult(ids, agg.ToError(), summary.Time, output)
		}
		if result == types.TestStatusFail {
			summary.Failed = 1
		}
	}

	cleanup := aggregator.New()
	if hooks.BeforeFinished != nil {
		cleanup.Run(func() error { return hooks.BeforeFinished(context.WithoutCancel(ctx)) })
	}
	if cleanupErr := cleanup.ToError(); cleanupErr != nil {
		err = errors.Join(err, r.state.reportCleanup(scope{
			level: ScopeTest,
			ids:   ids,
			cleanupFailure: func(f messages.FailureInfo) messages.Message {
				return &messages.TestCleanupFailure{IDs: ids, Failure: f}
			},
		}, summary, cleanupErr))
	}

	if ferr := r.state.publish(&messages.TestFinished{IDs: ids, ExecutionTime: summary.Time, Output: output}); ferr != nil {
		err = errors.Join(err, ferr)
	}
	if result != "" {
		metrics.RecordTest(r.state.assemblyName, result, summary.Time)
	}
	return summary, err
}

func (r *TestRunner) publishResult(ids messages.IDs, failure error, elapsed time.Duration, output string) (types.TestStatus, error) {
	if failure == nil {
		return types.TestStatusPass, r.state.publish(&messages.TestPassed{IDs: ids, ExecutionTime: elapsed, Output: output})
	}
	r.state.log.Debug("Test failed", "test", r.test.DisplayName, "err", failure)
	return types.TestStatusFail, r.state.publish(&messages.TestFailed{
		IDs:           ids,
		ExecutionTime: elapsed,
		Output:        output,
		Cause:         messages.CauseOf(failure),
		Failure:       messages.NewFailureInfo(failure),
	})
}

// beforeAfterHooks returns the hooks of the class followed by those of the method.
func beforeAfterHooks(tc *types.TestCase) []types.BeforeAfterTestAttribute {
	hooks := types.FindAttributes[types.BeforeAfterTestAttribute](tc.TestClass().Class.Attributes())
	return append(hooks, types.FindAttributes[types.BeforeAfterTestAttribute](tc.Method().Attributes())...)
}

// newTest builds the test at ordinal within tc.
func newTest(tc *types.TestCase, displayName string, ordinal int) *types.Test {
	return &types.Test{
		TestCase:    tc,
		DisplayName: displayName,
		UniqueID:    uniqueid.ForTest(tc.UniqueID, ordinal),
		Ordinal:     ordinal,
	}
}
