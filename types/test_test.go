package types

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAssembly struct{}

func (stubAssembly) Name() string            { return "stub" }
func (stubAssembly) Path() string            { return "/tmp/stub" }
func (stubAssembly) Attributes() []Attribute { return nil }
func (stubAssembly) Types() []TypeInfo       { return nil }

func TestNewTestAssemblyVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		expected string
		wantErr  bool
	}{
		{name: "empty", version: "", expected: ""},
		{name: "with prefix", version: "v1.2.3", expected: "v1.2.3"},
		{name: "without prefix", version: "1.2.3", expected: "v1.2.3"},
		{name: "short form is canonicalised", version: "v1.2", expected: "v1.2.0"},
		{name: "prerelease", version: "1.0.0-rc.1", expected: "v1.0.0-rc.1"},
		{name: "garbage", version: "latest", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewTestAssembly(stubAssembly{}, "", tt.version, "id")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, a.Version)
		})
	}

	_, err := NewTestAssembly(nil, "", "", "id")
	require.Error(t, err)
}

func TestTraits(t *testing.T) {
	traits := make(Traits)
	traits.Add("category", "fast")
	traits.Add("category", "fast")
	traits.Add("category", "unit")
	traits.Add("owner", "infra")

	assert.Equal(t, []string{"fast", "unit"}, traits["category"])
	assert.True(t, traits.Has("category", "FAST"))
	assert.False(t, traits.Has("category", "slow"))
	assert.Equal(t, "category=fast, category=unit, owner=infra", traits.String())
}

func TestRunSummary(t *testing.T) {
	var s RunSummary
	s.Aggregate(RunSummary{Total: 3, Failed: 1, Skipped: 1, Time: time.Second})
	s.Aggregate(RunSummary{Total: 2, Time: time.Second})

	assert.Equal(t, RunSummary{Total: 5, Failed: 1, Skipped: 1, Time: 2 * time.Second}, s)
	assert.Equal(t, 3, s.Passed())
	assert.Equal(t, TestStatusFail, s.Status())

	assert.Equal(t, TestStatusSkip, RunSummary{Total: 2, Skipped: 2}.Status())
	assert.Equal(t, TestStatusPass, RunSummary{}.Status())
}

func TestTestCaseSkipReason(t *testing.T) {
	tc := NewTestCase(CaseKindStandard, nil, "Class.Method", "not today")
	assert.Equal(t, "not today", tc.SkipReason())
	assert.NotNil(t, tc.Traits)
	assert.Equal(t, "standard", tc.Kind.String())
	assert.Equal(t, "delay-enumerated", CaseKindDelayEnumerated.String())
}

func TestFindAttributes(t *testing.T) {
	attrs := []Attribute{
		FactAttribute{DisplayName: "first"},
		TraitAttribute{Name: "a", Value: "1"},
		InlineData(1, 2),
		TraitAttribute{Name: "b", Value: "2"},
		FuncDataAttribute{Name: "rows", Func: func() ([][]any, error) { return [][]any{{3}}, nil }},
	}

	traits := FindAttributes[TraitAttribute](attrs)
	require.Len(t, traits, 2)
	assert.Equal(t, "b", traits[1].Name)

	data := FindAttributes[DataAttribute](attrs)
	require.Len(t, data, 2)
	rows, err := data[1].Data(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{3}}, rows)

	fact, ok := FindAttribute[FactAttribute](attrs)
	require.True(t, ok)
	assert.Equal(t, "first", fact.DisplayName)

	_, ok = FindAttribute[TheoryAttribute](attrs)
	assert.False(t, ok)
}

func TestInlineDataCopiesRow(t *testing.T) {
	attr := InlineData(1, "x")
	rows, err := attr.Data(context.Background(), nil)
	require.NoError(t, err)
	rows[0][0] = 42
	assert.Equal(t, 1, attr.Values[0])
}

func TestHookAttribute(t *testing.T) {
	var calls []string
	h := HookAttribute{
		HookName:   "trace",
		BeforeFunc: func(context.Context, *Test) error { calls = append(calls, "before"); return nil },
	}
	require.NoError(t, h.Before(context.Background(), nil))
	require.NoError(t, h.After(context.Background(), nil))
	assert.Equal(t, []string{"before"}, calls)
	assert.Equal(t, KindBeforeAfterTest, h.AttributeKind())
}

func TestParameterInfoString(t *testing.T) {
	assert.Equal(t, "int count", ParameterInfo{Name: "count", Type: reflect.TypeFor[int]()}.String())
	assert.Equal(t, "T value", ParameterInfo{Name: "value", Type: AnyType, GenericParameter: "T"}.String())
	assert.Equal(t, "any x", ParameterInfo{Name: "x"}.String())
}

func TestRunPlanDefaultsAndValidate(t *testing.T) {
	p := DefaultRunPlan()
	require.NoError(t, p.Validate())
	assert.True(t, p.Execution.ParallelCollections())
	assert.True(t, p.Execution.PreEnumerate())
	assert.Equal(t, ExplicitOff, p.Execution.Explicit)
	assert.Equal(t, CollectionPerClass, p.Execution.CollectionBehavior)

	p.Execution.Explicit = "ONLY"
	require.NoError(t, p.Validate())
	assert.Equal(t, ExplicitOnly, p.Execution.Explicit)

	p.Execution.Explicit = "sometimes"
	require.Error(t, p.Validate())

	p = DefaultRunPlan()
	p.Execution.CollectionBehavior = "per-method"
	require.Error(t, p.Validate())

	p = DefaultRunPlan()
	p.Execution.MaxFailures = -1
	require.Error(t, p.Validate())

	snap := SnapshotFromPlan(DefaultRunPlan())
	assert.True(t, snap.ParallelizeTestCollections)
	assert.Equal(t, "per-class", snap.CollectionBehavior)
}
