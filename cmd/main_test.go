package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/exitcodes"
	"github.com/ethereum-optimism/infra/op-testkit/logging"
	"github.com/ethereum-optimism/infra/op-testkit/reporting"
)

// runApp runs the CLI in-process and returns the exit code it requested.
func runApp(t *testing.T, args ...string) int {
	t.Helper()
	code := exitcodes.Success
	app := newApp(func(c int) { code = c })
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}
	_ = app.RunContext(context.Background(), append([]string{"op-testkit", "--log.level", "error"}, args...))
	return code
}

// TestExitCodeBehavior verifies that op-testkit returns the correct exit codes in run-once mode:
// - Exit code 0 when all tests pass
// - Exit code 1 when any tests fail
// - Exit code 2 when there's a runtime error
func TestExitCodeBehavior(t *testing.T) {
	testCases := []struct {
		name           string
		args           func(logDir string) []string
		expectedStatus int
	}{
		{
			name:           "Passing selfcheck should exit with code 0",
			args:           func(logDir string) []string { return []string{"--logdir", logDir} },
			expectedStatus: exitcodes.Success,
		},
		{
			name: "Injected failure should exit with code 1",
			args: func(logDir string) []string {
				return []string{"--logdir", logDir, "--selfcheck.inject-failure"}
			},
			expectedStatus: exitcodes.TestFailure,
		},
		{
			name: "Missing plan file should exit with code 2",
			args: func(logDir string) []string {
				return []string{"--logdir", logDir, "--plan", filepath.Join(logDir, "missing.yaml")}
			},
			expectedStatus: exitcodes.RuntimeErr,
		},
		{
			name: "Invalid plan values should exit with code 2",
			args: func(logDir string) []string {
				plan := filepath.Join(logDir, "plan.toml")
				require.NoError(t, os.WriteFile(plan, []byte("[execution]\nmaxFailures = -1\n"), 0644))
				return []string{"--logdir", logDir, "--plan", plan}
			},
			expectedStatus: exitcodes.RuntimeErr,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logDir := t.TempDir()
			assert.Equal(t, tc.expectedStatus, runApp(t, tc.args(logDir)...))
		})
	}
}

func TestSelfcheckWritesRunDirectory(t *testing.T) {
	logDir := t.TempDir()
	require.Equal(t, exitcodes.Success, runApp(t, "--logdir", logDir, "--seed", "7"))

	runDirs, err := filepath.Glob(filepath.Join(logDir, logging.RunDirectoryPrefix+"*"))
	require.NoError(t, err)
	require.Len(t, runDirs, 1)

	summary, err := os.ReadFile(filepath.Join(runDirs[0], reporting.SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Seed: 7")
	assert.Contains(t, string(summary), "Total Tests: 10\n")
	assert.Contains(t, string(summary), "Skipped: 1")
	assert.Contains(t, string(summary), "Status: PASS")
}

func TestSelfcheckExplicitOnly(t *testing.T) {
	logDir := t.TempDir()
	require.Equal(t, exitcodes.Success, runApp(t, "--logdir", logDir, "--explicit", "only"))

	runDirs, err := filepath.Glob(filepath.Join(logDir, logging.RunDirectoryPrefix+"*"))
	require.NoError(t, err)
	require.Len(t, runDirs, 1)
	summary, err := os.ReadFile(filepath.Join(runDirs[0], reporting.SummaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "Total Tests: 1\n")
	assert.Contains(t, string(summary), "Lifecycle.Manual")
}

func TestSelfcheckFlakeShake(t *testing.T) {
	logDir := t.TempDir()
	require.Equal(t, exitcodes.Success, runApp(t, "--logdir", logDir, "--flake-shake", "--flake-shake-iterations", "2"))

	reports, err := filepath.Glob(filepath.Join(logDir, logging.RunDirectoryPrefix+"*", "flake-shake-report.json"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}
