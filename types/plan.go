package types

import (
	"fmt"
	"strings"
	"time"
)

// ExplicitMode controls whether tests marked explicit are run.
type ExplicitMode string

const (
	ExplicitOff  ExplicitMode = "off"  // explicit tests are skipped
	ExplicitOn   ExplicitMode = "on"   // explicit tests run alongside the rest
	ExplicitOnly ExplicitMode = "only" // only explicit tests run
)

// CollectionBehavior selects how test classes are grouped into collections.
type CollectionBehavior string

const (
	CollectionPerClass    CollectionBehavior = "per-class"
	CollectionPerAssembly CollectionBehavior = "per-assembly"
)

// RunPlan is the run configuration loaded from a plan file.
type RunPlan struct {
	Execution ExecutionPlan `yaml:"execution" toml:"execution"`
	Filters   FilterPlan    `yaml:"filters" toml:"filters"`
}

// ExecutionPlan holds the execution options of a run.
type ExecutionPlan struct {
	ParallelizeTestCollections *bool              `yaml:"parallelizeTestCollections" toml:"parallelizeTestCollections"`
	ParallelizeTestCases       bool               `yaml:"parallelizeTestCases" toml:"parallelizeTestCases"`
	MaxParallelThreads         int                `yaml:"maxParallelThreads" toml:"maxParallelThreads"`
	MaxFailures                int                `yaml:"maxFailures" toml:"maxFailures"`
	Seed                       uint64             `yaml:"seed" toml:"seed"`
	DefaultTimeout             time.Duration      `yaml:"defaultTimeout" toml:"defaultTimeout"`
	PreEnumerateTheories       *bool              `yaml:"preEnumerateTheories" toml:"preEnumerateTheories"`
	Explicit                   ExplicitMode       `yaml:"explicit" toml:"explicit"`
	CollectionBehavior         CollectionBehavior `yaml:"collectionBehavior" toml:"collectionBehavior"`
}

// FilterPlan selects which discovered cases run.
type FilterPlan struct {
	IncludeTraits map[string][]string `yaml:"includeTraits" toml:"includeTraits"`
	ExcludeTraits map[string][]string `yaml:"excludeTraits" toml:"excludeTraits"`
	Classes       []string            `yaml:"classes" toml:"classes"`
	Methods       []string            `yaml:"methods" toml:"methods"`
	RerunFailed   bool                `yaml:"rerunFailed" toml:"rerunFailed"`
}

// DefaultRunPlan returns the plan used when no plan file is given.
func DefaultRunPlan() *RunPlan {
	p := &RunPlan{}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults fills unset options.
func (p *RunPlan) ApplyDefaults() {
	if p.Execution.ParallelizeTestCollections == nil {
		v := true
		p.Execution.ParallelizeTestCollections = &v
	}
	if p.Execution.PreEnumerateTheories == nil {
		v := true
		p.Execution.PreEnumerateTheories = &v
	}
	if p.Execution.Explicit == "" {
		p.Execution.Explicit = ExplicitOff
	}
	if p.Execution.CollectionBehavior == "" {
		p.Execution.CollectionBehavior = CollectionPerClass
	}
}

// Validate checks enumerated values and ranges.
func (p *RunPlan) Validate() error {
	switch ExplicitMode(strings.ToLower(string(p.Execution.Explicit))) {
	case ExplicitOff, ExplicitOn, ExplicitOnly:
		p.Execution.Explicit = ExplicitMode(strings.ToLower(string(p.Execution.Explicit)))
	default:
		return fmt.Errorf("invalid explicit mode %q (expected off, on or only)", p.Execution.Explicit)
	}
	switch p.Execution.CollectionBehavior {
	case CollectionPerClass, CollectionPerAssembly:
	default:
		return fmt.Errorf("invalid collection behavior %q (expected per-class or per-assembly)", p.Execution.CollectionBehavior)
	}
	if p.Execution.MaxParallelThreads < 0 {
		return fmt.Errorf("maxParallelThreads must not be negative")
	}
	if p.Execution.MaxFailures < 0 {
		return fmt.Errorf("maxFailures must not be negative")
	}
	if p.Execution.DefaultTimeout < 0 {
		return fmt.Errorf("defaultTimeout must not be negative")
	}
	return nil
}

// ParallelCollections reports whether collections may run concurrently.
func (e ExecutionPlan) ParallelCollections() bool {
	return e.ParallelizeTestCollections == nil || *e.ParallelizeTestCollections
}

// PreEnumerate reports whether theory data is enumerated during discovery.
func (e ExecutionPlan) PreEnumerate() bool {
	return e.PreEnumerateTheories == nil || *e.PreEnumerateTheories
}
