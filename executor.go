package testkit

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-testkit/history"
	"github.com/ethereum-optimism/infra/op-testkit/logging"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/registry"
	"github.com/ethereum-optimism/infra/op-testkit/reporting"
	"github.com/ethereum-optimism/infra/op-testkit/runner"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// RunResult is the outcome of one run of the assembly.
type RunResult struct {
	RunID    string
	Assembly string
	Status   types.TestStatus
	Summary  types.RunSummary
	Duration time.Duration
	// Tree is the result tree of a regular run.
	Tree *reporting.Tree
	// FlakeShake is the report of a flake-shake run.
	FlakeShake *runner.FlakeShakeReport
	// RunDir holds the logs and summaries of the run.
	RunDir string
}

func (r *RunResult) String() string {
	if r.FlakeShake != nil {
		return fmt.Sprintf("flake-shake %s: %d tests over %d iterations, %d unstable",
			r.RunID, len(r.FlakeShake.Tests), r.FlakeShake.Iterations, len(r.FlakeShake.Unstable()))
	}
	return fmt.Sprintf("run %s: %s, status %s", r.RunID, r.Summary, r.Status)
}

// Err returns the error the run maps to: nil for a passing or skipped run,
// a TestFailureError for failed tests or cleanup routines and a
// RuntimeError when the engine reported errors.
func (r *RunResult) Err() error {
	if r.FlakeShake != nil {
		if n := len(r.FlakeShake.Unstable()); n > 0 {
			return NewTestFailureError(fmt.Sprintf("%d unstable tests", n))
		}
		return nil
	}
	if r.Tree != nil && len(r.Tree.Errors) > 0 {
		return NewRuntimeError(fmt.Errorf("%d engine errors, first: %s", len(r.Tree.Errors), r.Tree.Errors[0].String()))
	}
	if r.Status == types.TestStatusFail || r.Status == types.TestStatusError {
		return NewTestFailureError(r.String())
	}
	return nil
}

// TestExecutor is responsible for running tests.
type TestExecutor interface {
	RunTests(ctx context.Context) (*RunResult, error)
}

// DefaultTestExecutor discovers the assembly's cases and runs them through
// the runner pipeline with the logging, reporting and history sinks attached.
type DefaultTestExecutor struct {
	config   *Config
	assembly types.AssemblyInfo
	version  string
	history  *history.Store
	hooks    runner.LevelHooks
	sinks    []messages.Sink
	logger   log.Logger
}

var _ TestExecutor = (*DefaultTestExecutor)(nil)

// NewDefaultTestExecutor creates an executor for assembly. store may be nil,
// in which case outcomes are not recorded and rerunFailed selects nothing.
// Extra sinks receive every event after the built-in ones.
func NewDefaultTestExecutor(config *Config, assembly types.AssemblyInfo, version string, store *history.Store, hooks runner.LevelHooks, sinks ...messages.Sink) *DefaultTestExecutor {
	return &DefaultTestExecutor{
		config:   config,
		assembly: assembly,
		version:  version,
		history:  store,
		hooks:    hooks,
		sinks:    sinks,
		logger:   config.Log.New("component", "executor"),
	}
}

// RunTests runs the assembly once, or once per iteration in flake-shake mode.
// The returned error is set when the run could not be carried out; test
// outcomes are reported through the result.
func (e *DefaultTestExecutor) RunTests(ctx context.Context) (*RunResult, error) {
	runID := uuid.New().String()
	lgr := e.logger.New("runID", runID)
	start := time.Now()

	regCfg := registry.Config{
		Log:      e.config.Log,
		PlanFile: e.config.PlanFile,
	}
	if e.history != nil {
		regCfg.History = e.history
	}
	diags := &discoveryDiagnostics{log: lgr}
	regCfg.Diagnostics = diags
	reg, err := registry.NewRegistry(regCfg)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create registry: %w", err))
	}
	plan := reg.Plan()
	if err := e.config.Overrides.Apply(plan); err != nil {
		return nil, NewRuntimeError(fmt.Errorf("invalid run plan: %w", err))
	}

	assembly, err := reg.NewTestAssembly(e.assembly, e.version)
	if err != nil {
		return nil, NewRuntimeError(err)
	}
	cases, err := reg.Discover(ctx, assembly)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to discover tests: %w", err))
	}
	lgr.Info("Discovered test cases", "assembly", e.assembly.Name(), "cases", len(cases))
	lgr.Debug("Effective configuration", "config", e.config.Snapshot(plan, e.assembly.Name(), runID))

	fileLogger, err := logging.NewFileLogger(e.config.LogDir, runID)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create file logger: %w", err))
	}
	defer func() {
		if err := fileLogger.Close(); err != nil {
			lgr.Error("Failed to close log files", "err", err)
		}
	}()

	result := &RunResult{
		RunID:    runID,
		Assembly: e.assembly.Name(),
		RunDir:   fileLogger.GetRunDir(),
	}

	sinks := []messages.Sink{logging.NewLogSink(lgr), fileLogger}
	if e.config.ShowProgress {
		progress := runner.NewProgressSink(lgr, e.config.ProgressInterval, len(cases))
		defer progress.Stop()
		sinks = append(sinks, progress)
	}
	runnerCfg := runner.Config{
		Log:         e.config.Log,
		Execution:   plan.Execution,
		RunID:       runID,
		Hooks:       e.hooks,
		Diagnostics: diags.lines,
	}

	if e.config.FlakeShake {
		runnerCfg.Bus = messages.NewBus(messages.Multi(append(sinks, e.sinks...)...))
		shaker, err := runner.NewFlakeShakeRunner(runnerCfg, e.config.FlakeShakeIterations, lgr)
		if err != nil {
			return nil, NewRuntimeError(err)
		}
		report, err := shaker.RunFlakeShake(ctx, assembly, cases)
		if err != nil {
			return nil, NewRuntimeError(fmt.Errorf("flake-shake failed: %w", err))
		}
		path, err := runner.SaveFlakeShakeReport(report, result.RunDir)
		if err != nil {
			return nil, NewRuntimeError(err)
		}
		lgr.Info("Flake-shake report saved", "path", path, "tests", len(report.Tests), "unstable", len(report.Unstable()))
		result.FlakeShake = report
		result.Status = types.TestStatusPass
		if len(report.Unstable()) > 0 {
			result.Status = types.TestStatusFail
		}
		result.Duration = time.Since(start)
		return result, nil
	}

	summary := reporting.NewTextSummarySink(result.RunDir, e.config.IncludeDetails)
	sinks = append(sinks, summary)
	if e.history != nil {
		sinks = append(sinks, history.NewSink(e.history, runID, lgr))
	}
	bus := messages.NewBus(messages.Multi(append(sinks, e.sinks...)...))
	defer bus.Close()
	runnerCfg.Bus = bus

	assemblyRunner, err := runner.NewTestAssemblyRunner(runnerCfg)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to create runner: %w", err))
	}
	runSummary, err := assemblyRunner.Run(ctx, assembly, cases)
	result.Summary = runSummary
	result.Tree = summary.Tree()
	result.Status = result.Tree.Status()
	result.Duration = time.Since(start)
	if err != nil {
		lgr.Error("Test run failed", "err", err)
		return result, NewRuntimeError(fmt.Errorf("test run failed: %w", err))
	}
	lgr.Info("Test run completed", "status", result.Status, "summary", runSummary.String(),
		"summaryFile", filepath.Join(result.RunDir, reporting.SummaryFile))
	return result, nil
}

// discoveryDiagnostics collects diagnostics reported while discovering. The
// assembly runner publishes them once the run has started.
type discoveryDiagnostics struct {
	log   log.Logger
	lines []string
}

var _ types.DiagnosticSink = (*discoveryDiagnostics)(nil)

func (d *discoveryDiagnostics) Diagnostic(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.log.Debug("Discovery diagnostic", "message", msg)
	d.lines = append(d.lines, msg)
}
