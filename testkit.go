// Package testkit runs a test assembly through the op-testkit engine, once or
// periodically, as a cliapp lifecycle.
package testkit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/history"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/runner"
	"github.com/ethereum-optimism/infra/op-testkit/types"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
)

// Kit implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &Kit{}

// Kit runs one test assembly and reports the results of every run.
type Kit struct {
	config    *Config
	history   *history.Store
	executor  TestExecutor
	scheduler TestScheduler
	formatter ResultFormatter
	reporter  *DefaultStatusReporter

	mu     sync.Mutex
	result *RunResult

	running          atomic.Bool
	shutdownCallback func(error) // Callback to signal application shutdown
}

// Options are the optional collaborators of a Kit.
type Options struct {
	// Hooks are the runner extension points.
	Hooks runner.LevelHooks
	// Sinks receive every event of every run.
	Sinks []messages.Sink
	// Formatter replaces the console results table.
	Formatter ResultFormatter
}

// New creates a Kit for assembly. shutdownCallback is called once a
// run-once Kit has finished.
func New(config *Config, assembly types.AssemblyInfo, version string, shutdownCallback func(error), opts Options) (*Kit, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if assembly == nil {
		return nil, errors.New("assembly is required")
	}
	if config.Log == nil {
		config.Log = log.New()
		config.Log.Error("No logger provided, using default")
	}

	config.Log.Debug("Creating testkit with config",
		"assembly", assembly.Name(),
		"planFile", config.PlanFile,
		"logDir", config.LogDir,
		"history", config.HistoryPath,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce,
		"flakeShake", config.FlakeShake)

	store, err := history.Open(history.Config{Log: config.Log, Path: config.HistoryPath})
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	formatter := opts.Formatter
	if formatter == nil {
		formatter = NewConsoleResultFormatter(config.Log)
	}

	k := &Kit{
		config:           config,
		history:          store,
		executor:         NewDefaultTestExecutor(config, assembly, version, store, opts.Hooks, opts.Sinks...),
		scheduler:        NewDefaultTestScheduler(config.RunInterval, config.RunOnce, config.Log.New("component", "scheduler")),
		formatter:        formatter,
		reporter:         NewDefaultStatusReporter(),
		shutdownCallback: shutdownCallback,
	}
	k.scheduler.RegisterCallback(k.runTests)
	config.Log.Info("testkit.New: created history and executor")
	return k, nil
}

// Start runs the assembly immediately and, in continuous mode, keeps running
// it at the configured interval.
// Start implements the cliapp.Lifecycle interface.
func (k *Kit) Start(ctx context.Context) error {
	k.running.Store(true)

	if k.config.RunOnce {
		k.config.Log.Info("Starting op-testkit in run-once mode")
	} else {
		k.config.Log.Info("Starting op-testkit in continuous mode", "interval", k.config.RunInterval)
	}

	if err := k.scheduler.Start(ctx); err != nil {
		k.config.Log.Error("Test run failed", "error", err)
		return err
	}

	if k.config.RunOnce {
		k.config.Log.Info("Tests completed, exiting (run-once mode)")
		if err := k.Result().Err(); err != nil {
			k.config.Log.Warn("Run-once test run completed with failures", "exitCode", ExitCode(err))
			return err
		}
		go func() {
			if k.shutdownCallback != nil {
				k.shutdownCallback(nil)
			}
		}()
		return nil
	}

	k.config.Log.Debug("op-testkit started successfully")
	return nil
}

// runTests runs the assembly once and processes the results.
func (k *Kit) runTests(ctx context.Context) error {
	result, err := k.executor.RunTests(ctx)
	if err != nil {
		k.reporter.ReportError(err)
		if result == nil {
			return err
		}
	}

	k.mu.Lock()
	k.result = result
	k.mu.Unlock()

	if fmtErr := k.formatter.FormatResults(result); fmtErr != nil {
		k.config.Log.Error("Failed to print results", "error", fmtErr)
	}
	if err != nil {
		return err
	}
	k.reporter.ReportResults(result)
	k.config.Log.Info("Test run completed", "run_id", result.RunID, "status", result.Status, "runDir", result.RunDir)
	return nil
}

// Result returns the latest run result.
func (k *Kit) Result() *RunResult {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.result
}

// Status returns the latest run status, for the healthz server.
func (k *Kit) Status() any {
	return k.reporter.Status()
}

// Stop stops the scheduler and closes the history.
// Stop implements the cliapp.Lifecycle interface.
func (k *Kit) Stop(ctx context.Context) error {
	k.config.Log.Info("Stopping op-testkit")

	if !k.running.CompareAndSwap(true, false) {
		k.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	err := k.scheduler.Stop()
	if waitErr := k.scheduler.WaitForShutdown(ctx); waitErr != nil {
		err = errors.Join(err, waitErr)
	}
	if closeErr := k.history.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to close history: %w", closeErr))
	}

	k.config.Log.Info("op-testkit stopped")
	return err
}

// Stopped returns true if the op-testkit service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (k *Kit) Stopped() bool {
	return !k.running.Load()
}
