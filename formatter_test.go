package testkit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/runner"
)

func TestConsoleResultFormatter_FormatResults(t *testing.T) {
	result, err := NewDefaultTestExecutor(testConfig(t), sampleAssembly(nil), "", nil, runner.LevelHooks{}).RunTests(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	formatter := &ConsoleResultFormatter{logger: discardLogger(), out: &buf}
	require.NoError(t, formatter.FormatResults(result))

	out := buf.String()
	assert.Contains(t, out, "Test Results")
	assert.Contains(t, out, "Suite.Broken")
	assert.Contains(t, out, "Suite.Rows(v: 1)")
	assert.Contains(t, out, "TOTAL")
}

func TestConsoleResultFormatter_FlakeShake(t *testing.T) {
	report := &runner.FlakeShakeReport{
		Iterations: 4,
		TotalRuns:  8,
		Tests: []runner.FlakeShakeResult{
			{TestName: "Suite.Flaky", TotalRuns: 4, Passes: 2, Failures: 2, PassRate: 50, AvgDuration: 20 * time.Millisecond, Recommendation: "UNSTABLE"},
			{TestName: "Suite.Stable", TotalRuns: 4, Passes: 4, PassRate: 100, Recommendation: "STABLE"},
		},
	}

	var buf bytes.Buffer
	formatter := &ConsoleResultFormatter{logger: discardLogger(), out: &buf}
	require.NoError(t, formatter.FormatResults(&RunResult{RunID: "shake", FlakeShake: report}))

	out := buf.String()
	assert.Contains(t, out, "Flake-Shake Results (4 iterations)")
	assert.Contains(t, out, "Suite.Flaky")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "1 UNSTABLE")
}

func TestConsoleResultFormatter_NoResults(t *testing.T) {
	formatter := &ConsoleResultFormatter{logger: discardLogger(), out: &bytes.Buffer{}}
	assert.Error(t, formatter.FormatResults(&RunResult{RunID: "empty"}))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.1s", formatDuration(135*time.Millisecond))
	assert.Equal(t, "2.5s", formatDuration(2500*time.Millisecond))
}
