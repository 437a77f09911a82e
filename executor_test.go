package testkit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/descriptor"
	"github.com/ethereum-optimism/infra/op-testkit/history"
	"github.com/ethereum-optimism/infra/op-testkit/logging"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/reporting"
	"github.com/ethereum-optimism/infra/op-testkit/runner"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// sampleAssembly has two passing tests, a failing one and a skipped one.
// The failing test passes once healthy is set.
func sampleAssembly(healthy *atomic.Bool) *descriptor.Assembly {
	return descriptor.NewAssembly("sample", "/sample.test").Add(
		descriptor.NewStaticClass("Suite").
			Fact("Passes", func() {}).
			Fact("Broken", func() error {
				if healthy != nil && healthy.Load() {
					return nil
				}
				return errors.New("broken")
			}).
			Fact("Later", func() {}, descriptor.With(types.FactAttribute{Skip: "not today"})).
			Theory("Rows", func(v int) {}, descriptor.Params("v"), descriptor.With(types.InlineData(1))),
	)
}

func testConfig(t *testing.T) *Config {
	return &Config{
		LogDir:               t.TempDir(),
		RunOnce:              true,
		IncludeDetails:       true,
		FlakeShakeIterations: 3,
		Log:                  discardLogger(),
	}
}

func openHistory(t *testing.T) *history.Store {
	store, err := history.Open(history.Config{Log: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDefaultTestExecutor_RunTests(t *testing.T) {
	cfg := testConfig(t)
	store := openHistory(t)
	rec := &messages.Recorder{}
	executor := NewDefaultTestExecutor(cfg, sampleAssembly(nil), "1.2.0", store, runner.LevelHooks{}, rec)

	result, err := executor.RunTests(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "sample", result.Assembly)
	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.Equal(t, 4, result.Summary.Total)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 1, result.Summary.Skipped)
	require.NotNil(t, result.Tree)
	require.Len(t, result.Tree.FailedTests, 1)
	assert.True(t, IsTestFailureError(result.Err()))

	starting := messages.OfType[*messages.TestAssemblyStarting](rec)
	require.Len(t, starting, 1)
	assert.Equal(t, result.RunID, starting[0].RunID)
	assert.Equal(t, "v1.2.0", starting[0].Version)

	t.Run("writes the run directory", func(t *testing.T) {
		assert.Equal(t, filepath.Join(cfg.LogDir, logging.RunDirectoryPrefix+result.RunID), result.RunDir)
		assert.FileExists(t, filepath.Join(result.RunDir, logging.AllLogsFilename))
		summary, err := os.ReadFile(filepath.Join(result.RunDir, reporting.SummaryFile))
		require.NoError(t, err)
		assert.Contains(t, string(summary), "Suite.Broken")
		assert.Contains(t, string(summary), "Error: broken")

		failed, err := os.ReadDir(filepath.Join(result.RunDir, logging.FailedDirname))
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "Suite.Broken.log", failed[0].Name())
	})

	t.Run("records outcomes in the history", func(t *testing.T) {
		last, err := store.LastRunID()
		require.NoError(t, err)
		assert.Equal(t, result.RunID, last)
		failedIDs, err := store.FailedCaseIDs()
		require.NoError(t, err)
		assert.Len(t, failedIDs, 1)
	})
}

func TestDefaultTestExecutor_RerunFailedOverride(t *testing.T) {
	var healthy atomic.Bool
	cfg := testConfig(t)
	store := openHistory(t)
	asm := sampleAssembly(&healthy)

	first, err := NewDefaultTestExecutor(cfg, asm, "", store, runner.LevelHooks{}).RunTests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, first.Summary.Total)

	rerun := true
	cfg.Overrides.RerunFailed = &rerun
	healthy.Store(true)
	rec := &messages.Recorder{}
	second, err := NewDefaultTestExecutor(cfg, asm, "", store, runner.LevelHooks{}, rec).RunTests(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, second.Summary.Total)
	assert.Equal(t, types.TestStatusPass, second.Status)
	assert.NoError(t, second.Err())
	started := messages.OfType[*messages.TestStarting](rec)
	require.Len(t, started, 1)
	assert.Equal(t, "Suite.Broken", started[0].DisplayName)
}

func TestDefaultTestExecutor_SinkFailureIsRuntimeError(t *testing.T) {
	cfg := testConfig(t)
	failing := &messages.Recorder{FailOn: func(m messages.Message) error {
		if _, ok := m.(*messages.TestPassed); ok {
			return errors.New("disk full")
		}
		return nil
	}}
	result, err := NewDefaultTestExecutor(cfg, sampleAssembly(nil), "", nil, runner.LevelHooks{}, failing).RunTests(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.ErrorContains(t, err, "disk full")
	require.NotNil(t, result, "partial results are returned with the error")
}

func TestDefaultTestExecutor_InvalidPlan(t *testing.T) {
	cfg := testConfig(t)
	mode := types.ExplicitMode("sometimes")
	cfg.Overrides.Explicit = &mode
	_, err := NewDefaultTestExecutor(cfg, sampleAssembly(nil), "", nil, runner.LevelHooks{}).RunTests(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
	assert.ErrorContains(t, err, "invalid explicit mode")

	cfg = testConfig(t)
	cfg.PlanFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = NewDefaultTestExecutor(cfg, sampleAssembly(nil), "", nil, runner.LevelHooks{}).RunTests(context.Background())
	require.Error(t, err)
	assert.True(t, IsRuntimeError(err))
}

func TestDefaultTestExecutor_FlakeShake(t *testing.T) {
	cfg := testConfig(t)
	cfg.FlakeShake = true
	var healthy atomic.Bool
	healthy.Store(true)
	result, err := NewDefaultTestExecutor(cfg, sampleAssembly(&healthy), "", nil, runner.LevelHooks{}).RunTests(context.Background())
	require.NoError(t, err)

	require.NotNil(t, result.FlakeShake)
	assert.Nil(t, result.Tree)
	assert.Equal(t, 3, result.FlakeShake.Iterations)
	assert.Len(t, result.FlakeShake.Seeds, 3)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.NoError(t, result.Err())
	assert.FileExists(t, filepath.Join(result.RunDir, runner.FlakeShakeReportFile))
	assert.Contains(t, result.String(), "0 unstable")

	cfg.FlakeShakeIterations = 2
	result, err = NewDefaultTestExecutor(cfg, sampleAssembly(nil), "", nil, runner.LevelHooks{}).RunTests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusFail, result.Status, "a test that never passes is unstable")
	assert.True(t, IsTestFailureError(result.Err()))
}

func TestRunResultErr(t *testing.T) {
	assert.NoError(t, (&RunResult{Status: types.TestStatusPass}).Err())
	assert.NoError(t, (&RunResult{Status: types.TestStatusSkip}).Err())
	assert.True(t, IsTestFailureError((&RunResult{Status: types.TestStatusFail}).Err()))

	withErrors := &RunResult{Status: types.TestStatusError, Tree: &reporting.Tree{
		Errors: []messages.FailureInfo{messages.NewFailureInfo(errors.New("engine"))},
	}}
	assert.True(t, IsRuntimeError(withErrors.Err()))

	cleanupOnly := &RunResult{Status: types.TestStatusError, Tree: &reporting.Tree{CleanupFailures: 1}}
	assert.True(t, IsTestFailureError(cleanupOnly.Err()))
}

func TestDefaultTestExecutor_DiscoveryDiagnosticsInsideAssembly(t *testing.T) {
	asm := descriptor.NewAssembly("dups", "/dups.test").Add(
		descriptor.NewStaticClass("Rows").
			Theory("Same", func(v int) {}, descriptor.Params("v"), descriptor.With(types.InlineData(1), types.InlineData(1))),
	)
	rec := &messages.Recorder{}
	result, err := NewDefaultTestExecutor(testConfig(t), asm, "", nil, runner.LevelHooks{}, rec).RunTests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Total)

	names := rec.Names()
	require.NotEmpty(t, names)
	assert.Equal(t, "TestAssemblyStarting", names[0])
	assert.Equal(t, "DiagnosticMessage", names[1])
	assert.Equal(t, "TestAssemblyFinished", names[len(names)-1])

	diags := messages.OfType[*messages.DiagnosticMessage](rec)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "duplicate ID")
	starting := messages.OfType[*messages.TestAssemblyStarting](rec)
	require.Len(t, starting, 1)
	assert.Equal(t, messages.IDs{Assembly: starting[0].Assembly}, diags[0].IDs)
}
