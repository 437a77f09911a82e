package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/descriptor"
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

type suite struct{}

func newSuite() *suite { return &suite{} }

func (s *suite) Fast()      {}
func (s *suite) Slow()      {}
func (s *suite) Manual()    {}
func (s *suite) Confused()  {}
func (s *suite) Rows(v int) {}
func (s *suite) NotATest()  {}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) FailedCaseIDs() (map[string]bool, error) {
	args := m.Called()
	ids, _ := args.Get(0).(map[string]bool)
	return ids, args.Error(1)
}

func testAssembly() *descriptor.Assembly {
	fast := descriptor.NewClass("Fast", newSuite, descriptor.With(types.TraitAttribute{Name: "category", Value: "fast"})).
		Fact("Fast", (*suite).Fast).
		Theory("Rows", (*suite).Rows, descriptor.With(types.InlineData(1), types.InlineData(2))).
		Method("NotATest", (*suite).NotATest)
	slow := descriptor.NewClass("Slow", newSuite, descriptor.With(types.TraitAttribute{Name: "category", Value: "slow"})).
		Fact("Slow", (*suite).Slow).
		Fact("Manual", (*suite).Manual, descriptor.With(types.FactAttribute{Explicit: true})).
		Method("Confused", (*suite).Confused, descriptor.With(types.FactAttribute{}, types.TheoryAttribute{}))
	def := descriptor.NewDefinition("Shared", types.CollectionDefinitionAttribute{Name: "shared"})
	return descriptor.NewAssembly("asm", "/tmp/asm.test").Add(def, fast, slow)
}

func discover(t *testing.T, r *Registry) []*types.TestCase {
	t.Helper()
	asm, err := r.NewTestAssembly(testAssembly(), "1.0.0")
	require.NoError(t, err)
	cases, err := r.Discover(context.Background(), asm)
	require.NoError(t, err)
	return cases
}

func names(cases []*types.TestCase) []string {
	out := make([]string, len(cases))
	for i, tc := range cases {
		out[i] = tc.DisplayName
	}
	return out
}

func TestRegistryDiscover(t *testing.T) {
	r, err := NewRegistry(Config{Log: log.New()})
	require.NoError(t, err)

	cases := discover(t, r)
	assert.Equal(t, []string{
		"Fast.Fast",
		"Fast.Rows(arg0: 1)",
		"Fast.Rows(arg0: 2)",
		"Slow.Slow",
		"Slow.Confused",
	}, names(cases), "explicit tests are filtered out by default")

	confused := cases[4]
	assert.Equal(t, types.CaseKindExecutionError, confused.Kind)
	assert.Contains(t, confused.ErrorMessage, "multiple test attributes: fact, theory")

	assert.NotSame(t, cases[0].TestCollection(), cases[3].TestCollection())
	assert.Equal(t, "v1.0.0", cases[0].TestCollection().TestAssembly.Version)
}

func TestRegistryCollectionBehaviorFromAssembly(t *testing.T) {
	r, err := NewRegistry(Config{Log: log.New()})
	require.NoError(t, err)

	a := testAssembly()
	perAssembly := descriptor.NewAssembly(a.Name(), a.Path(), types.CollectionBehaviorAttribute{PerAssembly: true}).Add(a.Types()...)
	asm, err := r.NewTestAssembly(perAssembly, "")
	require.NoError(t, err)
	cases, err := r.Discover(context.Background(), asm)
	require.NoError(t, err)
	require.NotEmpty(t, cases)
	for _, tc := range cases {
		assert.Same(t, cases[0].TestCollection(), tc.TestCollection())
	}
}

func TestRegistryRegisterReplacesDiscoverer(t *testing.T) {
	r, err := NewRegistry(Config{Log: log.New()})
	require.NoError(t, err)
	_, ok := r.Discoverer(types.KindFact)
	require.True(t, ok)
	_, ok = r.Discoverer(types.KindTrait)
	require.False(t, ok)
}

func TestRegistryFilters(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(p *types.RunPlan)
		expected []string
	}{
		{
			name:     "explicit only",
			mutate:   func(p *types.RunPlan) { p.Execution.Explicit = types.ExplicitOnly },
			expected: []string{"Slow.Manual"},
		},
		{
			name:     "explicit on",
			mutate:   func(p *types.RunPlan) { p.Execution.Explicit = types.ExplicitOn },
			expected: []string{"Fast.Fast", "Fast.Rows(arg0: 1)", "Fast.Rows(arg0: 2)", "Slow.Slow", "Slow.Manual", "Slow.Confused"},
		},
		{
			name:     "include traits",
			mutate:   func(p *types.RunPlan) { p.Filters.IncludeTraits = map[string][]string{"category": {"fast"}} },
			expected: []string{"Fast.Fast", "Fast.Rows(arg0: 1)", "Fast.Rows(arg0: 2)"},
		},
		{
			name:     "exclude traits",
			mutate:   func(p *types.RunPlan) { p.Filters.ExcludeTraits = map[string][]string{"category": {"fast"}} },
			expected: []string{"Slow.Slow", "Slow.Confused"},
		},
		{
			name:     "class glob",
			mutate:   func(p *types.RunPlan) { p.Filters.Classes = []string{"Sl*"} },
			expected: []string{"Slow.Slow", "Slow.Confused"},
		},
		{
			name:     "method by full name and bare name",
			mutate:   func(p *types.RunPlan) { p.Filters.Methods = []string{"Fast.Fast", "Rows"} },
			expected: []string{"Fast.Fast", "Fast.Rows(arg0: 1)", "Fast.Rows(arg0: 2)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(Config{Log: log.New()})
			require.NoError(t, err)
			tt.mutate(r.Plan())
			assert.Equal(t, tt.expected, names(discover(t, r)))
		})
	}
}

func TestRegistryRerunFailed(t *testing.T) {
	r, err := NewRegistry(Config{Log: log.New()})
	require.NoError(t, err)
	all := discover(t, r)

	history := &mockHistory{}
	history.On("FailedCaseIDs").Return(map[string]bool{all[1].UniqueID: true}, nil).Once()
	r, err = NewRegistry(Config{Log: log.New(), History: history})
	require.NoError(t, err)
	r.Plan().Filters.RerunFailed = true
	assert.Equal(t, []string{"Fast.Rows(arg0: 1)"}, names(discover(t, r)))

	history.On("FailedCaseIDs").Return(map[string]bool{}, nil).Once()
	assert.Len(t, discover(t, r), len(all), "nothing failed, everything runs")

	history.On("FailedCaseIDs").Return(nil, errors.New("corrupt")).Once()
	asm, err := r.NewTestAssembly(testAssembly(), "")
	require.NoError(t, err)
	_, err = r.Discover(context.Background(), asm)
	require.ErrorContains(t, err, "corrupt")
	history.AssertExpectations(t)

	r, err = NewRegistry(Config{Log: log.New()})
	require.NoError(t, err)
	r.Plan().Filters.RerunFailed = true
	_, err = r.Discover(context.Background(), asm)
	require.ErrorContains(t, err, "requires a history store")
}

func TestLoadPlan(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
execution:
  parallelizeTestCollections: false
  maxParallelThreads: 4
  maxFailures: 2
  seed: 1234
  defaultTimeout: 30s
  explicit: "on"
  collectionBehavior: per-assembly
filters:
  includeTraits:
    category: [fast]
  classes: [Fast]
`), 0644))

	plan, err := LoadPlan(yamlPath)
	require.NoError(t, err)
	assert.False(t, plan.Execution.ParallelCollections())
	assert.True(t, plan.Execution.PreEnumerate())
	assert.Equal(t, 4, plan.Execution.MaxParallelThreads)
	assert.Equal(t, 2, plan.Execution.MaxFailures)
	assert.Equal(t, uint64(1234), plan.Execution.Seed)
	assert.Equal(t, 30*time.Second, plan.Execution.DefaultTimeout)
	assert.Equal(t, types.ExplicitOn, plan.Execution.Explicit)
	assert.Equal(t, types.CollectionPerAssembly, plan.Execution.CollectionBehavior)
	assert.Equal(t, []string{"fast"}, plan.Filters.IncludeTraits["category"])
	assert.Equal(t, []string{"Fast"}, plan.Filters.Classes)

	tomlPath := filepath.Join(dir, "plan.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(`
[execution]
parallelizeTestCases = true
preEnumerateTheories = false
defaultTimeout = "1m"

[filters]
methods = ["Fast.Fast"]
rerunFailed = true
`), 0644))

	plan, err = LoadPlan(tomlPath)
	require.NoError(t, err)
	assert.True(t, plan.Execution.ParallelizeTestCases)
	assert.False(t, plan.Execution.PreEnumerate())
	assert.True(t, plan.Execution.ParallelCollections())
	assert.Equal(t, time.Minute, plan.Execution.DefaultTimeout)
	assert.Equal(t, types.ExplicitOff, plan.Execution.Explicit)
	assert.True(t, plan.Filters.RerunFailed)

	badPaths := map[string]string{
		"unknown.toml": "[execution]\nmystery = 1\n",
		"unknown.yaml": "execution:\n  maxFailure: 3\n",
		"invalid.yaml": "execution:\n  explicit: sometimes\n",
		"broken.yaml":  "execution: [",
		"plan.json":    "{}",
	}
	for name, content := range badPaths {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
		_, err := LoadPlan(p)
		assert.Error(t, err, name)
	}

	_, err = LoadPlan(filepath.Join(dir, "unknown.yaml"))
	require.ErrorContains(t, err, "field maxFailure not found")

	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0644))
	plan, err = LoadPlan(emptyPath)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Execution.MaxFailures)

	_, err = LoadPlan(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	_, err = NewRegistry(Config{Log: log.New(), PlanFile: filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}
