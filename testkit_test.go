package testkit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// trackedMockExecutor is a mock executor that counts executions
type trackedMockExecutor struct {
	mock.Mock
	execCount atomic.Int32
	execCh    chan struct{}
}

func newTrackedMockExecutor() *trackedMockExecutor {
	return &trackedMockExecutor{execCh: make(chan struct{}, 100)}
}

func (m *trackedMockExecutor) RunTests(ctx context.Context) (*RunResult, error) {
	m.execCount.Add(1)
	args := m.Called()
	select {
	case m.execCh <- struct{}{}:
	default:
	}
	result, _ := args.Get(0).(*RunResult)
	return result, args.Error(1)
}

type nopFormatter struct{ calls atomic.Int32 }

func (f *nopFormatter) FormatResults(*RunResult) error {
	f.calls.Add(1)
	return nil
}

func newTestKit(t *testing.T, cfg *Config, executor TestExecutor, shutdown func(error)) (*Kit, *nopFormatter) {
	formatter := &nopFormatter{}
	k, err := New(cfg, sampleAssembly(nil), "", shutdown, Options{Formatter: formatter})
	require.NoError(t, err)
	k.executor = executor
	return k, formatter
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, sampleAssembly(nil), "", nil, Options{})
	require.Error(t, err)
	_, err = New(testConfig(t), nil, "", nil, Options{})
	require.Error(t, err)
}

func TestKitRunOncePassing(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests").Return(&RunResult{RunID: "run-1", Status: types.TestStatusPass}, nil).Once()

	shutdownCalled := make(chan error, 1)
	k, formatter := newTestKit(t, testConfig(t), executor, func(err error) { shutdownCalled <- err })

	require.NoError(t, k.Start(context.Background()))
	select {
	case err := <-shutdownCalled:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("shutdown callback not called")
	}

	assert.Equal(t, int32(1), formatter.calls.Load())
	assert.Equal(t, "run-1", k.Result().RunID)
	assert.Equal(t, "run-1", k.Status().(RunStatus).LastRunID)
	require.NoError(t, k.Stop(context.Background()))
	assert.True(t, k.Stopped())
	executor.AssertExpectations(t)
}

func TestKitRunOnceFailing(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests").Return(&RunResult{RunID: "run-1", Status: types.TestStatusFail}, nil).Once()

	k, _ := newTestKit(t, testConfig(t), executor, func(error) { t.Error("shutdown callback must not be called on failure") })
	err := k.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Equal(t, 1, ExitCode(err))
	require.NoError(t, k.Stop(context.Background()))
}

func TestKitRunOnceRuntimeError(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests").Return(nil, NewRuntimeError(errors.New("plan not found"))).Once()

	k, formatter := newTestKit(t, testConfig(t), executor, nil)
	err := k.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
	assert.Zero(t, formatter.calls.Load(), "nothing to print without a result")
	assert.Equal(t, types.TestStatusError, k.Status().(RunStatus).LastStatus)
	require.NoError(t, k.Stop(context.Background()))
}

func TestKitPeriodic(t *testing.T) {
	executor := newTrackedMockExecutor()
	executor.On("RunTests").Return(&RunResult{RunID: "run", Status: types.TestStatusFail}, nil)

	cfg := testConfig(t)
	cfg.RunOnce = false
	cfg.RunInterval = 10 * time.Millisecond
	k, _ := newTestKit(t, cfg, executor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, k.Start(ctx), "failures do not stop a periodic kit")

	for i := 0; i < 3; i++ {
		select {
		case <-executor.execCh:
		case <-time.After(time.Second):
			t.Fatalf("Timed out waiting for run %d", i+1)
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	require.NoError(t, k.Stop(stopCtx))
	assert.True(t, k.Stopped())
	require.NoError(t, k.Stop(stopCtx), "Stop is idempotent")

	count := executor.execCount.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, count, executor.execCount.Load())
	assert.GreaterOrEqual(t, k.Status().(RunStatus).Runs, 3)
}

func TestKitEndToEnd(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	cfg := testConfig(t)
	formatter := &nopFormatter{}
	k, err := New(cfg, sampleAssembly(&healthy), "0.1.0", nil, Options{Formatter: formatter})
	require.NoError(t, err)

	require.NoError(t, k.Start(context.Background()))
	result := k.Result()
	require.NotNil(t, result)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.Equal(t, 4, result.Summary.Total)
	require.NoError(t, k.Stop(context.Background()))
}
