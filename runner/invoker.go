package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/discovery"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// InstanceFactory constructs a fresh test class instance for every test.
type InstanceFactory struct {
	Class types.TypeInfo
	// Constructor is nil when every test method of the class is static.
	Constructor types.ConstructorInfo
	// Arguments are the resolved constructor arguments. The output helper
	// is substituted per test.
	Arguments []any
}

func (f InstanceFactory) arguments(output types.TestOutput) []any {
	args := make([]any, len(f.Arguments))
	for i, a := range f.Arguments {
		if _, ok := a.(outputSlot); ok {
			args[i] = output
			continue
		}
		args[i] = a
	}
	return args
}

// TestInvoker runs one test body: it constructs the instance, runs the before
// hooks, invokes the method with its timeout, runs the after hooks and
// disposes the instance. Every failure goes to the aggregator.
type TestInvoker struct {
	state   *runState
	test    *types.Test
	ids     messages.IDs
	method  types.MethodInfo
	args    []any
	factory InstanceFactory
	hooks   []types.BeforeAfterTestAttribute
	output  *testOutput
}

// Run returns the elapsed time. The returned error is only set when an event
// could not be published.
func (inv *TestInvoker) Run(ctx context.Context, agg *aggregator.Aggregator) (time.Duration, error) {
	if agg.HasErrors() {
		return 0, nil
	}
	start := time.Now()

	instance, err := inv.createInstance(ctx, agg)
	if err != nil {
		return time.Since(start), err
	}

	if !agg.HasErrors() {
		args := discovery.FillDefaults(inv.method.Parameters(), inv.args)
		if params := inv.method.Parameters(); len(params) != len(args) {
			agg.Add(&types.DefinitionError{Msg: fmt.Sprintf(
				"The test method expected %d parameter value(s), but %d parameter value(s) were provided.", len(params), len(args))})
		} else if err := inv.runWithHooks(ctx, agg, instance, args); err != nil {
			return time.Since(start), err
		}
	}

	if instance != nil {
		if err := inv.disposeInstance(ctx, agg, instance); err != nil {
			return time.Since(start), err
		}
	}
	return time.Since(start), nil
}

func (inv *TestInvoker) createInstance(ctx context.Context, agg *aggregator.Aggregator) (any, error) {
	if inv.method.IsStatic() || inv.factory.Constructor == nil {
		return nil, nil
	}
	if err := inv.state.publish(&messages.TestClassConstructionStarting{IDs: inv.ids}); err != nil {
		return nil, err
	}
	var instance any
	agg.Run(func() error {
		var err error
		instance, err = inv.factory.Constructor.Invoke(inv.factory.arguments(inv.output))
		return err
	})
	if err := inv.state.publish(&messages.TestClassConstructionFinished{IDs: inv.ids}); err != nil {
		return instance, err
	}
	if init, ok := instance.(types.AsyncInitializer); ok && !agg.HasErrors() {
		agg.Run(func() error { return await(ctx, init.InitializeAsync(ctx)) })
	}
	return instance, nil
}

// runWithHooks runs the before hooks in order, the body when every before
// hook succeeded, and then the after hook of each before hook that
// succeeded, in reverse order.
func (inv *TestInvoker) runWithHooks(ctx context.Context, agg *aggregator.Aggregator, instance any, args []any) error {
	var ran []types.BeforeAfterTestAttribute
	for _, hook := range inv.hooks {
		if err := inv.state.publish(&messages.BeforeTestStarting{IDs: inv.ids, HookName: hook.Name()}); err != nil {
			return err
		}
		herr := agg.Run(func() error { return hook.Before(ctx, inv.test) })
		if err := inv.state.publish(&messages.BeforeTestFinished{IDs: inv.ids, HookName: hook.Name()}); err != nil {
			return err
		}
		if herr != nil {
			break
		}
		ran = append(ran, hook)
	}

	if !agg.HasErrors() {
		agg.Add(inv.invokeBody(ctx, instance, args))
	}

	for i := len(ran) - 1; i >= 0; i-- {
		hook := ran[i]
		if err := inv.state.publish(&messages.AfterTestStarting{IDs: inv.ids, HookName: hook.Name()}); err != nil {
			return err
		}
		agg.Run(func() error { return hook.After(ctx, inv.test) })
		if err := inv.state.publish(&messages.AfterTestFinished{IDs: inv.ids, HookName: hook.Name()}); err != nil {
			return err
		}
	}
	return nil
}

// invokeBody runs the method on its own goroutine and waits for it or the
// test timeout, whichever comes first. The body's context is not cancelled
// when the run is; only the timeout cancels it.
func (inv *TestInvoker) invokeBody(ctx context.Context, instance any, args []any) error {
	timeout := inv.test.TestCase.Timeout
	var (
		bodyCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		bodyCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), timeout)
	} else {
		bodyCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- callMethod(bodyCtx, inv.method, instance, args)
	}()

	select {
	case err := <-done:
		if errors.Is(bodyCtx.Err(), context.DeadlineExceeded) {
			return &types.TimeoutError{Timeout: timeout}
		}
		return err
	case <-bodyCtx.Done():
		inv.state.log.Warn("Test timed out", "test", inv.test.DisplayName, "timeout", timeout)
		return &types.TimeoutError{Timeout: timeout}
	}
}

// callMethod invokes method and awaits an asynchronous result.
func callMethod(ctx context.Context, method types.MethodInfo, instance any, args []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = aggregator.Recovered(r)
		}
	}()
	result, err := method.Invoke(ctx, instance, args)
	if err != nil {
		return err
	}
	if ch, ok := result.(<-chan error); ok {
		return await(ctx, ch)
	}
	return nil
}

func (inv *TestInvoker) disposeInstance(ctx context.Context, agg *aggregator.Aggregator, instance any) error {
	if !disposable(instance) {
		return nil
	}
	if err := inv.state.publish(&messages.TestClassDisposeStarting{IDs: inv.ids}); err != nil {
		return err
	}
	agg.Add(disposeValue(context.WithoutCancel(ctx), instance))
	return inv.state.publish(&messages.TestClassDisposeFinished{IDs: inv.ids})
}
