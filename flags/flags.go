package flags

import (
	"fmt"
	"slices"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

const EnvVarPrefix = "OP_TESTKIT"

// ValidExplicitModes returns the accepted values of the explicit flag.
func ValidExplicitModes() []types.ExplicitMode {
	return []types.ExplicitMode{types.ExplicitOff, types.ExplicitOn, types.ExplicitOnly}
}

// ValidCollectionBehaviors returns the accepted values of the collection-behavior flag.
func ValidCollectionBehaviors() []types.CollectionBehavior {
	return []types.CollectionBehavior{types.CollectionPerClass, types.CollectionPerAssembly}
}

func validateExplicit(value string) error {
	if !slices.Contains(ValidExplicitModes(), types.ExplicitMode(value)) {
		return fmt.Errorf("explicit must be one of %v, got %q", ValidExplicitModes(), value)
	}
	return nil
}

func validateCollectionBehavior(value string) error {
	if !slices.Contains(ValidCollectionBehaviors(), types.CollectionBehavior(value)) {
		return fmt.Errorf("collection-behavior must be one of %v, got %q", ValidCollectionBehaviors(), value)
	}
	return nil
}

var (
	PlanFile = &cli.StringFlag{
		Name:    "plan",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PLAN"),
		Usage:   "Path to a run plan file (YAML or TOML) with execution options and filters",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store test logs and summaries",
	}
	HistoryPath = &cli.StringFlag{
		Name:    "history",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HISTORY"),
		Usage:   "Path to the run history database. Empty keeps history in memory for the lifetime of the process.",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	Seed = &cli.Uint64Flag{
		Name:    "seed",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SEED"),
		Usage:   "Seed of the test case order. 0 picks a random seed per run. Overrides the plan file.",
	}
	MaxParallelThreads = &cli.IntFlag{
		Name:    "max-parallel-threads",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_PARALLEL_THREADS"),
		Usage:   "Maximum number of concurrently running collections (0 = number of CPUs). Overrides the plan file.",
	}
	MaxFailures = &cli.IntFlag{
		Name:    "max-failures",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MAX_FAILURES"),
		Usage:   "Stop the run after this many failed tests (0 = never stop early). Overrides the plan file.",
	}
	Serial = &cli.BoolFlag{
		Name:    "serial",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERIAL"),
		Usage:   "Run collections one at a time. Overrides the plan file.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Timeout applied to tests that do not declare one (0 = no timeout). Overrides the plan file.",
	}
	Explicit = &cli.StringFlag{
		Name:    "explicit",
		Value:   string(types.ExplicitOff),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "EXPLICIT"),
		Usage:   fmt.Sprintf("Which explicit tests run. One of: %v. Overrides the plan file.", ValidExplicitModes()),
		Action: func(ctx *cli.Context, value string) error {
			return validateExplicit(value)
		},
	}
	CollectionBehavior = &cli.StringFlag{
		Name:    "collection-behavior",
		Value:   string(types.CollectionPerClass),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COLLECTION_BEHAVIOR"),
		Usage:   fmt.Sprintf("How classes are grouped into collections. One of: %v. Overrides the plan file.", ValidCollectionBehaviors()),
		Action: func(ctx *cli.Context, value string) error {
			return validateCollectionBehavior(value)
		},
	}
	RerunFailed = &cli.BoolFlag{
		Name:    "rerun-failed",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RERUN_FAILED"),
		Usage:   "Only run the test cases that failed in the previous run recorded in the history",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Periodically log how far the run has progressed",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when show-progress is enabled",
	}
	FlakeShake = &cli.BoolFlag{
		Name:    "flake-shake",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FLAKE_SHAKE"),
		Usage:   "Run the assembly several times and report per-test pass rates",
	}
	FlakeShakeIterations = &cli.IntFlag{
		Name:    "flake-shake-iterations",
		Value:   10,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FLAKE_SHAKE_ITERATIONS"),
		Usage:   "Number of iterations in flake-shake mode",
	}
	IncludeDetails = &cli.BoolFlag{
		Name:    "include-details",
		Value:   true,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "INCLUDE_DETAILS"),
		Usage:   "Include failure messages and captured output in the text summary",
	}
	HealthzEnabled = &cli.BoolFlag{
		Name:    "healthz.enabled",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ENABLED"),
		Usage:   "Serve /healthz and /status",
	}
	HealthzPort = &cli.StringFlag{
		Name:    "healthz.port",
		Value:   "8080",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_PORT"),
		Usage:   "Port of the healthz server",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	PlanFile,
	LogDir,
	HistoryPath,
	RunInterval,
	Seed,
	MaxParallelThreads,
	MaxFailures,
	Serial,
	DefaultTimeout,
	Explicit,
	CollectionBehavior,
	RerunFailed,
	ShowProgress,
	ProgressInterval,
	FlakeShake,
	FlakeShakeIterations,
	IncludeDetails,
	HealthzEnabled,
	HealthzPort,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
