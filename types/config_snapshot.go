package types

import "time"

// EffectiveConfigSnapshot represents the effective runtime configuration grouped by domain.
type EffectiveConfigSnapshot struct {
	Execution ExecutionConfigSnapshot `json:"execution"`
	Filters   FilterPlan              `json:"filters"`
	Lifecycle LifecycleConfigSnapshot `json:"lifecycle"`
	Paths     PathsConfigSnapshot     `json:"paths"`

	// Metadata
	AssemblyName string `json:"assemblyName"`
	RunID        string `json:"runId,omitempty"`
}

type ExecutionConfigSnapshot struct {
	ParallelizeTestCollections bool          `json:"parallelizeTestCollections"`
	ParallelizeTestCases       bool          `json:"parallelizeTestCases"`
	MaxParallelThreads         int           `json:"maxParallelThreads"`
	MaxFailures                int           `json:"maxFailures"`
	Seed                       uint64        `json:"seed"`
	DefaultTimeout             time.Duration `json:"defaultTimeout"`
	PreEnumerateTheories       bool          `json:"preEnumerateTheories"`
	Explicit                   ExplicitMode  `json:"explicit"`
	CollectionBehavior         string        `json:"collectionBehavior"`
}

type LifecycleConfigSnapshot struct {
	RunInterval      time.Duration `json:"runInterval"`
	RunOnce          bool          `json:"runOnce"`
	ShowProgress     bool          `json:"showProgress"`
	ProgressInterval time.Duration `json:"progressInterval"`
	FlakeShake       bool          `json:"flakeShake"`
	FlakeShakeIters  int           `json:"flakeShakeIterations,omitempty"`
}

type PathsConfigSnapshot struct {
	PlanFile   string `json:"planFile,omitempty"`
	LogDir     string `json:"logDir"`
	HistoryDir string `json:"historyDir,omitempty"`
}

// SnapshotFromPlan fills the execution part of a snapshot from a run plan.
func SnapshotFromPlan(p *RunPlan) ExecutionConfigSnapshot {
	return ExecutionConfigSnapshot{
		ParallelizeTestCollections: p.Execution.ParallelCollections(),
		ParallelizeTestCases:       p.Execution.ParallelizeTestCases,
		MaxParallelThreads:         p.Execution.MaxParallelThreads,
		MaxFailures:                p.Execution.MaxFailures,
		Seed:                       p.Execution.Seed,
		DefaultTimeout:             p.Execution.DefaultTimeout,
		PreEnumerateTheories:       p.Execution.PreEnumerate(),
		Explicit:                   p.Execution.Explicit,
		CollectionBehavior:         string(p.Execution.CollectionBehavior),
	}
}
