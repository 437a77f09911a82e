package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-testkit/discovery"
	"github.com/ethereum-optimism/infra/op-testkit/types"
	"github.com/ethereum-optimism/infra/op-testkit/uniqueid"
)

// FailedCaseSource reports the unique IDs of cases that failed in a previous run.
type FailedCaseSource interface {
	FailedCaseIDs() (map[string]bool, error)
}

// Registry holds the discoverers per attribute kind and the run plan, and
// turns an assembly into the filtered list of test cases to run.
type Registry struct {
	config      Config
	plan        *types.RunPlan
	discoverers map[types.AttributeKind]discovery.Discoverer
	mu          sync.RWMutex
}

// Config contains registry configuration
type Config struct {
	Log log.Logger
	// PlanFile is an optional YAML (.yaml/.yml) or TOML (.toml) run plan.
	PlanFile string
	// History backs the rerunFailed filter.
	History FailedCaseSource
	// Diagnostics receives discovery diagnostics.
	Diagnostics types.DiagnosticSink
}

// NewRegistry creates a new registry with the fact and theory discoverers registered
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	r := &Registry{
		config:      cfg,
		discoverers: make(map[types.AttributeKind]discovery.Discoverer),
	}
	r.Register(types.KindFact, discovery.FactDiscoverer{})
	r.Register(types.KindTheory, discovery.TheoryDiscoverer{})

	plan := types.DefaultRunPlan()
	if cfg.PlanFile != "" {
		var err error
		plan, err = LoadPlan(cfg.PlanFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load plan: %w", err)
		}
	}
	r.plan = plan

	cfg.Log.Debug("Registry loaded", "planFile", cfg.PlanFile, "discoverers", len(r.discoverers))
	return r, nil
}

// Register sets the discoverer for an attribute kind, replacing any existing one.
func (r *Registry) Register(kind types.AttributeKind, d discovery.Discoverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoverers[kind] = d
}

// Discoverer returns the discoverer registered for kind.
func (r *Registry) Discoverer(kind types.AttributeKind) (discovery.Discoverer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.discoverers[kind]
	return d, ok
}

// Plan returns the run plan. Callers may adjust it before discovery.
func (r *Registry) Plan() *types.RunPlan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plan
}

// GetConfig returns the registry configuration
func (r *Registry) GetConfig() Config {
	return r.config
}

// NewTestAssembly wraps an assembly descriptor with its deterministic ID.
func (r *Registry) NewTestAssembly(assembly types.AssemblyInfo, version string) (*types.TestAssembly, error) {
	id := uniqueid.ForAssembly(assembly.Name(), assembly.Path(), r.config.PlanFile)
	return types.NewTestAssembly(assembly, r.config.PlanFile, version, id)
}

// Discover finds every test case in the assembly and applies the plan filters.
func (r *Registry) Discover(ctx context.Context, assembly *types.TestAssembly) ([]*types.TestCase, error) {
	plan := r.Plan()
	behavior := plan.Execution.CollectionBehavior
	if attr, ok := types.FindAttribute[types.CollectionBehaviorAttribute](assembly.Assembly.Attributes()); ok && attr.PerAssembly {
		behavior = types.CollectionPerAssembly
	}
	factory := discovery.NewCollectionFactory(behavior, assembly)
	opts := discovery.Options{
		PreEnumerateTheories: plan.Execution.PreEnumerate(),
		DefaultTimeout:       plan.Execution.DefaultTimeout,
		Log:                  r.config.Log,
		Diagnostics:          r.config.Diagnostics,
	}

	var cases []*types.TestCase
	for _, class := range assembly.Assembly.Types() {
		if len(class.Methods()) == 0 {
			continue
		}
		collection := factory.Get(class)
		testClass := &types.TestClass{
			TestCollection: collection,
			Class:          class,
			UniqueID:       uniqueid.ForTestClass(collection.UniqueID, class.Name()),
		}
		for _, method := range class.Methods() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			testMethod := &types.TestMethod{
				TestClass: testClass,
				Method:    method,
				UniqueID:  uniqueid.ForTestMethod(testClass.UniqueID, method.Name()),
			}
			found, err := r.discoverMethod(ctx, opts, testMethod)
			if err != nil {
				return nil, fmt.Errorf("discovering %s: %w", testMethod.FullName(), err)
			}
			cases = append(cases, found...)
		}
	}

	r.config.Log.Debug("Discovered test cases", "assembly", assembly.Assembly.Name(), "cases", len(cases), "collectionBehavior", factory.DisplayName())
	return r.Filter(cases)
}

func (r *Registry) discoverMethod(ctx context.Context, opts discovery.Options, method *types.TestMethod) ([]*types.TestCase, error) {
	type match struct {
		attr       types.Attribute
		discoverer discovery.Discoverer
	}
	var matches []match
	for _, attr := range method.Method.Attributes() {
		if d, ok := r.Discoverer(attr.AttributeKind()); ok {
			matches = append(matches, match{attr: attr, discoverer: d})
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0].discoverer.Discover(ctx, opts, method, matches[0].attr)
	default:
		kinds := make([]string, len(matches))
		for i, m := range matches {
			kinds[i] = string(m.attr.AttributeKind())
		}
		msg := fmt.Sprintf("Test method '%s' has multiple test attributes: %s", method.FullName(), strings.Join(kinds, ", "))
		return []*types.TestCase{discovery.NewExecutionErrorCase(opts, method, msg)}, nil
	}
}

// Filter applies the plan's explicit mode, trait, class, method and
// rerun-failed filters.
func (r *Registry) Filter(cases []*types.TestCase) ([]*types.TestCase, error) {
	plan := r.Plan()
	filters := plan.Filters

	var failed map[string]bool
	if filters.RerunFailed {
		if r.config.History == nil {
			return nil, fmt.Errorf("rerunFailed requires a history store")
		}
		var err error
		failed, err = r.config.History.FailedCaseIDs()
		if err != nil {
			return nil, fmt.Errorf("reading failed cases: %w", err)
		}
		if len(failed) == 0 {
			r.config.Log.Info("No failed cases recorded, running all cases")
			failed = nil
		}
	}

	var out []*types.TestCase
	for _, tc := range cases {
		switch {
		case !explicitAllowed(plan.Execution.Explicit, tc):
		case !traitsAllowed(filters, tc):
		case !nameAllowed(filters.Classes, tc.TestClass().Class.Name()):
		case !methodAllowed(filters.Methods, tc):
		case failed != nil && !failed[tc.UniqueID]:
		default:
			out = append(out, tc)
			continue
		}
		r.config.Log.Debug("Filtered out test case", "case", tc.DisplayName)
	}
	return out, nil
}

func explicitAllowed(mode types.ExplicitMode, tc *types.TestCase) bool {
	switch mode {
	case types.ExplicitOn:
		return true
	case types.ExplicitOnly:
		return tc.Explicit
	default:
		return !tc.Explicit
	}
}

func traitsAllowed(f types.FilterPlan, tc *types.TestCase) bool {
	for name, values := range f.ExcludeTraits {
		for _, v := range values {
			if tc.Traits.Has(name, v) {
				return false
			}
		}
	}
	if len(f.IncludeTraits) == 0 {
		return true
	}
	for name, values := range f.IncludeTraits {
		for _, v := range values {
			if tc.Traits.Has(name, v) {
				return true
			}
		}
	}
	return false
}

func nameAllowed(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p == name {
			return true
		}
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

func methodAllowed(patterns []string, tc *types.TestCase) bool {
	if len(patterns) == 0 {
		return true
	}
	return nameAllowed(patterns, tc.TestMethod.FullName()) || nameAllowed(patterns, tc.Method().Name())
}

// LoadPlan reads a run plan from a YAML or TOML file.
func LoadPlan(planPath string) (*types.RunPlan, error) {
	log.Debug("Reading run plan", "path", planPath)

	data, err := os.ReadFile(planPath)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var plan types.RunPlan
	switch ext := strings.ToLower(filepath.Ext(planPath)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&plan); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing plan file: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &plan)
		if err != nil {
			return nil, fmt.Errorf("parsing plan file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("unknown keys in plan file: %s", strings.Join(keys, ", "))
		}
	default:
		return nil, fmt.Errorf("unsupported plan file extension %q (expected .yaml, .yml or .toml)", ext)
	}

	plan.ApplyDefaults()
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	return &plan, nil
}
