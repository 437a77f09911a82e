package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/messages"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// FlakeShakeReportFile is the name of the report written by SaveFlakeShakeReport.
const FlakeShakeReportFile = "flake-shake-report.json"

// FlakeShakeResult represents aggregated results for a test across multiple runs
type FlakeShakeResult struct {
	TestID         string        `json:"test_id"`
	TestName       string        `json:"test_name"`
	Class          string        `json:"class"`
	TotalRuns      int           `json:"total_runs"`
	Passes         int           `json:"passes"`
	Failures       int           `json:"failures"`
	Skipped        int           `json:"skipped"`
	PassRate       float64       `json:"pass_rate"`
	AvgDuration    time.Duration `json:"avg_duration"`
	MinDuration    time.Duration `json:"min_duration"`
	MaxDuration    time.Duration `json:"max_duration"`
	FailureLogs    []string      `json:"failure_logs,omitempty"`
	LastFailure    *time.Time    `json:"last_failure,omitempty"`
	Recommendation string        `json:"recommendation"`
}

// FlakeShakeReport contains the complete flake-shake analysis
type FlakeShakeReport struct {
	Date        string             `json:"date"`
	Assembly    string             `json:"assembly"`
	TotalRuns   int                `json:"total_runs"`
	Iterations  int                `json:"iterations"`
	Seeds       []uint64           `json:"seeds"`
	Tests       []FlakeShakeResult `json:"tests"`
	GeneratedAt time.Time          `json:"generated_at"`
	RunID       string             `json:"run_id"`
}

// Unstable returns the tests that did not pass on every run.
func (r *FlakeShakeReport) Unstable() []FlakeShakeResult {
	var out []FlakeShakeResult
	for _, t := range r.Tests {
		if t.Recommendation != "STABLE" {
			out = append(out, t)
		}
	}
	return out
}

// FlakeShakeRunner runs an assembly several times and correlates the
// outcomes of each test by its unique ID.
type FlakeShakeRunner struct {
	cfg        Config
	iterations int
	log        log.Logger
}

// NewFlakeShakeRunner creates a new flake-shake runner. cfg configures each
// iteration's assembly runner; its Bus is optional and, when set, receives
// the events of every iteration. A zero seed gives each iteration a fresh
// random order.
func NewFlakeShakeRunner(cfg Config, iterations int, log log.Logger) (*FlakeShakeRunner, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("iterations must be positive, got %d", iterations)
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &FlakeShakeRunner{
		cfg:        cfg,
		iterations: iterations,
		log:        log.New("component", "flake-shake"),
	}, nil
}

// RunFlakeShake runs the cases once per iteration and generates a stability report
func (f *FlakeShakeRunner) RunFlakeShake(ctx context.Context, assembly *types.TestAssembly, cases []*types.TestCase) (*FlakeShakeReport, error) {
	name := assembly.Assembly.Name()
	f.log.Info("Starting flake-shake analysis", "assembly", name, "iterations", f.iterations, "cases", len(cases))

	collector := newFlakeCollector()
	var seeds []uint64
	for i := 1; i <= f.iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f.log.Info("Running iteration", "iteration", i, "total", f.iterations)

		cfg := f.cfg
		cfg.Log = f.log.New("iteration", i)
		cfg.Bus = messages.NewBus(collector.sink(f.cfg.Bus))
		runner, err := NewTestAssemblyRunner(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating runner: %w", err)
		}
		summary, err := runner.Run(ctx, assembly, cases)
		if err != nil {
			f.log.Error("Failed to run tests", "iteration", i, "error", err)
			// Continue with other iterations even if one fails
			continue
		}
		seeds = append(seeds, collector.lastSeed())
		f.log.Info("Iteration finished", "iteration", i, "total", summary.Total, "failed", summary.Failed)
	}

	order, results := collector.outcomes()
	report := f.generateReport(order, results, name)
	report.Seeds = seeds
	report.RunID = f.cfg.RunID
	return report, nil
}

// flakeOutcome is one test's result in one iteration.
type flakeOutcome struct {
	name     string
	class    string
	status   types.TestStatus
	duration time.Duration
	failure  string
	at       time.Time
}

// flakeCollector records test outcomes from every iteration.
type flakeCollector struct {
	mu       sync.Mutex
	names    map[string]string
	classes  map[string]string
	results  map[string][]flakeOutcome
	order    []string
	seed     uint64
	statuses map[string]flakeOutcome
}

func newFlakeCollector() *flakeCollector {
	return &flakeCollector{
		names:    make(map[string]string),
		classes:  make(map[string]string),
		results:  make(map[string][]flakeOutcome),
		statuses: make(map[string]flakeOutcome),
	}
}

// sink returns a sink that records outcomes and forwards to next, if set.
func (c *flakeCollector) sink(next messages.Bus) messages.Sink {
	return messages.SinkFunc(func(msg messages.Message) (bool, error) {
		c.record(msg)
		if next == nil {
			return true, nil
		}
		return next.Publish(msg)
	})
}

func (c *flakeCollector) record(msg messages.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := msg.Scope().Test
	switch m := msg.(type) {
	case *messages.TestAssemblyStarting:
		c.seed = m.Seed
	case *messages.TestClassStarting:
		c.classes[m.Class] = m.ClassName
	case *messages.TestStarting:
		if _, ok := c.names[id]; !ok {
			c.order = append(c.order, id)
		}
		c.names[id] = m.DisplayName
	case *messages.TestPassed:
		c.statuses[id] = flakeOutcome{status: types.TestStatusPass, duration: m.ExecutionTime}
	case *messages.TestFailed:
		c.statuses[id] = flakeOutcome{status: types.TestStatusFail, duration: m.ExecutionTime, failure: m.Failure.String() + m.Output, at: time.Now()}
	case *messages.TestSkipped:
		c.statuses[id] = flakeOutcome{status: types.TestStatusSkip}
	case *messages.TestFinished:
		outcome := c.statuses[id]
		delete(c.statuses, id)
		outcome.name = c.names[id]
		outcome.class = c.classes[m.Class]
		c.results[id] = append(c.results[id], outcome)
	}
}

func (c *flakeCollector) lastSeed() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seed
}

// outcomes returns the recorded outcomes keyed by test ID, with the IDs in
// first-seen order.
func (c *flakeCollector) outcomes() ([]string, map[string][]flakeOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	order := append([]string(nil), c.order...)
	results := make(map[string][]flakeOutcome, len(c.results))
	for id, r := range c.results {
		results[id] = append([]flakeOutcome(nil), r...)
	}
	return order, results
}

// generateReport creates a FlakeShakeReport from aggregated test results
func (f *FlakeShakeRunner) generateReport(order []string, results map[string][]flakeOutcome, assembly string) *FlakeShakeReport {
	report := &FlakeShakeReport{
		Date:        time.Now().Format("2006-01-02"),
		Assembly:    assembly,
		Iterations:  f.iterations,
		GeneratedAt: time.Now(),
	}

	for _, id := range order {
		testResults := results[id]
		if len(testResults) == 0 {
			continue
		}
		last := testResults[len(testResults)-1]
		result := FlakeShakeResult{
			TestID:      id,
			TestName:    last.name,
			Class:       last.class,
			TotalRuns:   len(testResults),
			MinDuration: time.Hour, // Start with large value
		}

		var totalDuration time.Duration
		for _, tr := range testResults {
			switch tr.status {
			case types.TestStatusPass:
				result.Passes++
			case types.TestStatusFail:
				result.Failures++
				if len(result.FailureLogs) < 5 { // Keep first 5 failure logs
					result.FailureLogs = append(result.FailureLogs, tr.failure)
				}
				at := tr.at
				result.LastFailure = &at
			case types.TestStatusSkip:
				result.Skipped++
			}

			duration := tr.duration
			totalDuration += duration
			if duration < result.MinDuration {
				result.MinDuration = duration
			}
			if duration > result.MaxDuration {
				result.MaxDuration = duration
			}
		}

		result.AvgDuration = totalDuration / time.Duration(result.TotalRuns)
		if ran := result.TotalRuns - result.Skipped; ran > 0 {
			result.PassRate = float64(result.Passes) / float64(ran) * 100
		} else {
			result.PassRate = 100
		}

		// Generate recommendation - simple binary classification
		if result.PassRate == 100 && result.TotalRuns == f.iterations {
			result.Recommendation = "STABLE"
		} else {
			result.Recommendation = "UNSTABLE"
		}

		report.Tests = append(report.Tests, result)
		report.TotalRuns += result.TotalRuns
	}

	// Least stable first
	sort.SliceStable(report.Tests, func(i, j int) bool {
		return report.Tests[i].PassRate < report.Tests[j].PassRate
	})
	return report
}

// SaveFlakeShakeReport writes the report as JSON into outputDir and returns the file path.
func SaveFlakeShakeReport(report *FlakeShakeReport, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	filename := filepath.Join(outputDir, FlakeShakeReportFile)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write JSON file: %w", err)
	}
	return filename, nil
}
