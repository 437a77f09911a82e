package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/ethereum-optimism/infra/op-testkit/aggregator"
	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/metrics"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Runner runs a discovered set of test cases and returns the run summary.
type Runner interface {
	Run(ctx context.Context, assembly *types.TestAssembly, cases []*types.TestCase) (types.RunSummary, error)
}

// Config holds configuration for creating a new assembly runner
type Config struct {
	Log log.Logger
	// Bus receives every event of the run.
	Bus messages.Bus
	// Execution holds the execution options of the run plan.
	Execution types.ExecutionPlan
	// RunID identifies the run in events and metrics. A random ID is used when empty.
	RunID string
	// Hooks are the extension points of each runner level.
	Hooks LevelHooks
	// Orderer replaces the default test case orderer.
	Orderer types.TestCaseOrderer
	// Diagnostics are published inside the assembly bracket, right after
	// its starting event. Discovery warnings are passed in this way.
	Diagnostics []string
}

// TestAssemblyRunner is the entry point of a run. It partitions cases by
// collection, brackets the run with the assembly events, decides collection
// concurrency and owns cancellation: a sink asking to stop or the failure
// limit being reached prevents any further test from starting.
type TestAssemblyRunner struct {
	cfg Config
	log log.Logger
}

var _ Runner = (*TestAssemblyRunner)(nil)

// NewTestAssemblyRunner creates a new assembly runner
func NewTestAssemblyRunner(cfg Config) (*TestAssemblyRunner, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("message bus is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Execution.MaxParallelThreads < 0 {
		return nil, fmt.Errorf("maxParallelThreads must not be negative")
	}
	return &TestAssemblyRunner{cfg: cfg, log: cfg.Log.New("component", "assembly-runner")}, nil
}

// Run runs the cases and returns the summary of the run. The error is set
// only when the message bus failed; test failures are reported through the
// bus and the summary.
func (r *TestAssemblyRunner) Run(ctx context.Context, assembly *types.TestAssembly, cases []*types.TestCase) (types.RunSummary, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	seed := r.cfg.Execution.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	runID := r.cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	name := assembly.Assembly.Name()
	parallel, limit := r.collectionConcurrency(assembly)

	orderer := r.cfg.Orderer
	if orderer == nil {
		orderer = NewDefaultOrderer(seed)
	}
	lgr := r.log.New("assembly", name, "runID", runID)
	state := &runState{
		bus:                  newFailurePolicyBus(r.cfg.Bus, r.cfg.Execution.MaxFailures, cancel, lgr),
		cancel:               cancel,
		log:                  lgr,
		tracer:               otel.Tracer("test runner"),
		hooks:                r.cfg.Hooks,
		orderer:              orderer,
		assemblyName:         name,
		parallelizeTestCases: r.cfg.Execution.ParallelizeTestCases,
		maxParallelThreads:   limit,
	}

	ctx, span := state.tracer.Start(ctx, fmt.Sprintf("assembly %s", name))
	defer span.End()

	metrics.RunStarted()
	defer metrics.RunFinished()

	lgr.Info("Starting test run", "cases", len(cases), "seed", seed, "parallelCollections", parallel, "maxParallelThreads", limit)
	start := time.Now()
	ids := messages.IDs{Assembly: assembly.UniqueID}
	agg := aggregator.New()
	summary, err := state.bracket(ctx, scope{
		level: ScopeAssembly,
		ids:   ids,
		hooks: r.cfg.Hooks.Assembly,
		starting: &messages.TestAssemblyStarting{
			IDs:          ids,
			AssemblyName: name,
			AssemblyPath: assembly.Assembly.Path(),
			ConfigFile:   assembly.ConfigFile,
			Version:      assembly.Version,
			StartTime:    start,
			Seed:         seed,
			RunID:        runID,
		},
		finished: func(s types.RunSummary) messages.Message {
			return &messages.TestAssemblyFinished{IDs: ids, Summary: s, WallTime: time.Since(start)}
		},
		cleanupFailure: func(f messages.FailureInfo) messages.Message {
			return &messages.TestAssemblyCleanupFailure{IDs: ids, Failure: f}
		},
	}, agg, func(ctx context.Context) (types.RunSummary, error) {
		diag := &diagnosticSink{state: state, ids: ids}
		for _, line := range r.cfg.Diagnostics {
			diag.Diagnostic("%s", line)
		}
		return r.runCollections(ctx, state, agg, cases, parallel, limit)
	}, nil)

	err = errors.Join(err, state.firstDetachedErr())
	wall := time.Since(start)
	metrics.RecordRun(name, runID, summary, wall)

	if cause := context.Cause(ctx); cause != nil {
		lgr.Warn("Test run stopped early", "cause", cause)
	}
	if err != nil {
		lgr.Error("Test run failed", "err", err)
	} else {
		lgr.Info("Test run finished", "total", summary.Total, "failed", summary.Failed, "skipped", summary.Skipped, "duration", wall)
	}
	return summary, err
}

// runCollections runs the collections that allow parallelization on a
// bounded pool, then the others one at a time.
func (r *TestAssemblyRunner) runCollections(ctx context.Context, state *runState, agg *aggregator.Aggregator, cases []*types.TestCase, parallel bool, limit int) (types.RunSummary, error) {
	var concurrent, sequential []scopeWork
	for _, group := range groupBy(cases, byCollection) {
		collection := group[0].TestCollection()
		runner := &TestCollectionRunner{state: state, collection: collection, cases: group}
		work := func() (types.RunSummary, error) {
			return runner.Run(ctx, agg.Clone())
		}
		if def, ok := collection.DefinitionAttribute(); parallel && !(ok && def.DisableParallelization) {
			concurrent = append(concurrent, work)
		} else {
			sequential = append(sequential, work)
		}
	}

	var summary types.RunSummary
	if len(concurrent) > 0 {
		s, err := runPool(concurrent, limit)
		summary.Aggregate(s)
		if err != nil {
			return summary, err
		}
	}
	s, err := runSequential(sequential)
	summary.Aggregate(s)
	return summary, err
}

// collectionConcurrency combines the plan with the assembly's collection
// behavior attribute.
func (r *TestAssemblyRunner) collectionConcurrency(assembly *types.TestAssembly) (bool, int) {
	parallel := r.cfg.Execution.ParallelCollections()
	threads := r.cfg.Execution.MaxParallelThreads
	if attr, ok := types.FindAttribute[types.CollectionBehaviorAttribute](assembly.Assembly.Attributes()); ok {
		if attr.DisableTestParallelization {
			parallel = false
		}
		if threads == 0 {
			threads = attr.MaxParallelThreads
		}
	}
	return parallel, concurrency(threads)
}
