package testkit

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-testkit/flags"
	"github.com/ethereum-optimism/infra/op-testkit/types"
	"github.com/ethereum/go-ethereum/log"
)

// Config holds the application configuration
type Config struct {
	PlanFile             string        // Optional run plan file
	LogDir               string        // Directory to store test logs and summaries
	HistoryPath          string        // Run history database, empty for in-memory
	RunInterval          time.Duration // Interval between test runs
	RunOnce              bool          // Indicates if the service should exit after one test run
	ShowProgress         bool          // Whether to show periodic progress updates during test execution
	ProgressInterval     time.Duration // Interval between progress updates when ShowProgress is 'true'
	FlakeShake           bool          // Enable flake-shake mode for test stability validation
	FlakeShakeIterations int           // Number of times to run the assembly in flake-shake mode
	IncludeDetails       bool          // Include failure details in the text summary
	Overrides            PlanOverrides // Command line values taking precedence over the plan file
	Log                  log.Logger
}

// PlanOverrides are run plan values given on the command line. Nil fields
// keep the plan file's value.
type PlanOverrides struct {
	Seed               *uint64
	MaxParallelThreads *int
	MaxFailures        *int
	Serial             *bool
	DefaultTimeout     *time.Duration
	Explicit           *types.ExplicitMode
	CollectionBehavior *types.CollectionBehavior
	RerunFailed        *bool
}

// Apply writes the overrides into plan and validates the result.
func (o PlanOverrides) Apply(plan *types.RunPlan) error {
	if o.Seed != nil {
		plan.Execution.Seed = *o.Seed
	}
	if o.MaxParallelThreads != nil {
		plan.Execution.MaxParallelThreads = *o.MaxParallelThreads
	}
	if o.MaxFailures != nil {
		plan.Execution.MaxFailures = *o.MaxFailures
	}
	if o.Serial != nil {
		parallel := !*o.Serial
		plan.Execution.ParallelizeTestCollections = &parallel
	}
	if o.DefaultTimeout != nil {
		plan.Execution.DefaultTimeout = *o.DefaultTimeout
	}
	if o.Explicit != nil {
		plan.Execution.Explicit = *o.Explicit
	}
	if o.CollectionBehavior != nil {
		plan.Execution.CollectionBehavior = *o.CollectionBehavior
	}
	if o.RerunFailed != nil {
		plan.Filters.RerunFailed = *o.RerunFailed
	}
	return plan.Validate()
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	if runInterval < 0 {
		return nil, fmt.Errorf("run interval must not be negative, got %s", runInterval)
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err := filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	var planFile string
	if p := ctx.String(flags.PlanFile.Name); p != "" {
		planFile, err = filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for plan file '%s': %w", p, err)
		}
	}

	flakeShake := ctx.Bool(flags.FlakeShake.Name)
	iterations := ctx.Int(flags.FlakeShakeIterations.Name)
	if flakeShake && iterations <= 0 {
		return nil, fmt.Errorf("flake-shake iterations must be positive, got %d", iterations)
	}

	return &Config{
		PlanFile:             planFile,
		LogDir:               logDir,
		HistoryPath:          ctx.String(flags.HistoryPath.Name),
		RunInterval:          runInterval,
		RunOnce:              runInterval == 0,
		ShowProgress:         ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval:     ctx.Duration(flags.ProgressInterval.Name),
		FlakeShake:           flakeShake,
		FlakeShakeIterations: iterations,
		IncludeDetails:       ctx.Bool(flags.IncludeDetails.Name),
		Overrides:            overridesFromCLI(ctx),
		Log:                  log,
	}, nil
}

// overridesFromCLI collects the plan options explicitly set on the command line.
func overridesFromCLI(ctx *cli.Context) PlanOverrides {
	var o PlanOverrides
	if ctx.IsSet(flags.Seed.Name) {
		v := ctx.Uint64(flags.Seed.Name)
		o.Seed = &v
	}
	if ctx.IsSet(flags.MaxParallelThreads.Name) {
		v := ctx.Int(flags.MaxParallelThreads.Name)
		o.MaxParallelThreads = &v
	}
	if ctx.IsSet(flags.MaxFailures.Name) {
		v := ctx.Int(flags.MaxFailures.Name)
		o.MaxFailures = &v
	}
	if ctx.IsSet(flags.Serial.Name) {
		v := ctx.Bool(flags.Serial.Name)
		o.Serial = &v
	}
	if ctx.IsSet(flags.DefaultTimeout.Name) {
		v := ctx.Duration(flags.DefaultTimeout.Name)
		o.DefaultTimeout = &v
	}
	if ctx.IsSet(flags.Explicit.Name) {
		v := types.ExplicitMode(ctx.String(flags.Explicit.Name))
		o.Explicit = &v
	}
	if ctx.IsSet(flags.CollectionBehavior.Name) {
		v := types.CollectionBehavior(ctx.String(flags.CollectionBehavior.Name))
		o.CollectionBehavior = &v
	}
	if ctx.IsSet(flags.RerunFailed.Name) {
		v := ctx.Bool(flags.RerunFailed.Name)
		o.RerunFailed = &v
	}
	return o
}

// Snapshot returns the effective configuration of a run with the given plan.
func (c *Config) Snapshot(plan *types.RunPlan, assemblyName, runID string) types.EffectiveConfigSnapshot {
	return types.EffectiveConfigSnapshot{
		Execution: types.SnapshotFromPlan(plan),
		Filters:   plan.Filters,
		Lifecycle: types.LifecycleConfigSnapshot{
			RunInterval:      c.RunInterval,
			RunOnce:          c.RunOnce,
			ShowProgress:     c.ShowProgress,
			ProgressInterval: c.ProgressInterval,
			FlakeShake:       c.FlakeShake,
			FlakeShakeIters:  c.FlakeShakeIterations,
		},
		Paths: types.PathsConfigSnapshot{
			PlanFile:   c.PlanFile,
			LogDir:     c.LogDir,
			HistoryDir: c.HistoryPath,
		},
		AssemblyName: assemblyName,
		RunID:        runID,
	}
}
