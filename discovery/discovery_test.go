package discovery

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/descriptor"
	"github.com/ethereum-optimism/infra/op-testkit/types"
	"github.com/ethereum-optimism/infra/op-testkit/uniqueid"
)

type calc struct{}

func newCalc() *calc { return &calc{} }

func (c *calc) Adds() {}

func (c *calc) Add(a, b, sum int) error {
	if a+b != sum {
		return fmt.Errorf("%d+%d != %d", a, b, sum)
	}
	return nil
}

func (c *calc) Widen(v int64) {}

func (c *calc) Takes(v any) {}

type opaque struct{ ch chan int }

type diagnostics struct{ lines []string }

func (d *diagnostics) Diagnostic(format string, args ...any) {
	d.lines = append(d.lines, fmt.Sprintf(format, args...))
}

func testMethod(t *testing.T, class *descriptor.Class, name string) *types.TestMethod {
	t.Helper()
	asm, err := types.NewTestAssembly(descriptor.NewAssembly("asm", "/asm").Add(class), "", "", "asm-id")
	require.NoError(t, err)
	coll := NewCollectionPerClass(asm).Get(class)
	tc := &types.TestClass{TestCollection: coll, Class: class, UniqueID: uniqueid.ForTestClass(coll.UniqueID, class.Name())}
	for _, m := range class.Methods() {
		if m.Name() == name {
			return &types.TestMethod{TestClass: tc, Method: m, UniqueID: uniqueid.ForTestMethod(tc.UniqueID, m.Name())}
		}
	}
	t.Fatalf("method %s not found", name)
	return nil
}

func opts() Options {
	return Options{PreEnumerateTheories: true}
}

func discoverTheory(t *testing.T, o Options, class *descriptor.Class, name string) []*types.TestCase {
	t.Helper()
	m := testMethod(t, class, name)
	attr, ok := types.FindAttribute[types.TheoryAttribute](m.Method.Attributes())
	require.True(t, ok)
	cases, err := TheoryDiscoverer{}.Discover(context.Background(), o, m, attr)
	require.NoError(t, err)
	return cases
}

func TestFactDiscoverer(t *testing.T) {
	class := descriptor.NewClass("Calc", newCalc, descriptor.With(types.TraitAttribute{Name: "owner", Value: "infra"})).
		Fact("Adds", (*calc).Adds, descriptor.With(
			types.FactAttribute{Timeout: time.Second, Explicit: true},
			types.TraitAttribute{Name: "category", Value: "fast"})).
		Fact("Add", (*calc).Add)

	m := testMethod(t, class, "Adds")
	cases, err := FactDiscoverer{}.Discover(context.Background(), opts(), m, m.Method.Attributes()[0])
	require.NoError(t, err)
	require.Len(t, cases, 1)
	tc := cases[0]
	assert.Equal(t, types.CaseKindStandard, tc.Kind)
	assert.Equal(t, "Calc.Adds", tc.DisplayName)
	assert.Equal(t, uniqueid.ForTestCase(m.UniqueID, nil, nil), tc.UniqueID)
	assert.Equal(t, time.Second, tc.Timeout)
	assert.True(t, tc.Explicit)
	assert.True(t, tc.Traits.Has("owner", "infra"))
	assert.True(t, tc.Traits.Has("category", "fast"))
	assert.NotEmpty(t, tc.Source.File)

	m = testMethod(t, class, "Add")
	cases, err = FactDiscoverer{}.Discover(context.Background(), opts(), m, types.FactAttribute{})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	assert.Equal(t, types.CaseKindExecutionError, cases[0].Kind)
	assert.Contains(t, cases[0].ErrorMessage, "not allowed to have parameters")

	_, err = FactDiscoverer{}.Discover(context.Background(), opts(), m, types.TheoryAttribute{})
	require.Error(t, err)
}

func TestFactDefaultTimeout(t *testing.T) {
	class := descriptor.NewClass("Calc", newCalc).Fact("Adds", (*calc).Adds)
	m := testMethod(t, class, "Adds")
	o := opts()
	o.DefaultTimeout = 5 * time.Second
	cases, err := FactDiscoverer{}.Discover(context.Background(), o, m, types.FactAttribute{})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cases[0].Timeout)
}

func TestTheoryExpandsSerializableRows(t *testing.T) {
	class := descriptor.NewClass("Calc", newCalc).
		Theory("Add", (*calc).Add, descriptor.Params("a", "b", "sum"), descriptor.With(
			types.InlineData(1, 2, 3),
			types.InlineData(2, 2, 4),
			types.InlineData(5, 5, 10)))

	cases := discoverTheory(t, opts(), class, "Add")
	require.Len(t, cases, 3)
	ids := map[string]bool{}
	for _, tc := range cases {
		assert.Equal(t, types.CaseKindStandard, tc.Kind)
		ids[tc.UniqueID] = true
	}
	assert.Len(t, ids, 3)
	assert.Equal(t, "Calc.Add(a: 1, b: 2, sum: 3)", cases[0].DisplayName)
	assert.Equal(t, []any{5, 5, 10}, cases[2].Arguments)

	again := discoverTheory(t, opts(), class, "Add")
	assert.Equal(t, cases[1].UniqueID, again[1].UniqueID, "case IDs are deterministic")
}

func TestTheoryNonSerializableRowFallsBack(t *testing.T) {
	class := descriptor.NewClass("Calc", newCalc).
		Theory("Takes", (*calc).Takes, descriptor.With(types.FuncDataAttribute{
			Name: "mixed",
			Func: func() ([][]any, error) {
				return [][]any{{1}, {"two"}, {opaque{}}}, nil
			},
		}))

	cases := discoverTheory(t, opts(), class, "Takes")
	require.Len(t, cases, 1)
	assert.Equal(t, types.CaseKindDelayEnumerated, cases[0].Kind)
	assert.Nil(t, cases[0].Arguments)
	assert.Equal(t, "Calc.Takes", cases[0].DisplayName)
}

func TestTheoryFallbackTriggers(t *testing.T) {
	tests := []struct {
		name   string
		attrs  []types.Attribute
		opts   Options
		expect types.CaseKind
	}{
		{
			name:   "pre-enumeration disabled",
			attrs:  []types.Attribute{types.InlineData(1)},
			opts:   Options{},
			expect: types.CaseKindDelayEnumerated,
		},
		{
			name: "theory disables enumeration",
			attrs: []types.Attribute{
				types.TheoryAttribute{DisableDiscoveryEnumeration: true},
				types.InlineData(1),
			},
			opts:   opts(),
			expect: types.CaseKindDelayEnumerated,
		},
		{
			name: "source opts out",
			attrs: []types.Attribute{types.FuncDataAttribute{
				Func:                        func() ([][]any, error) { return [][]any{{1}}, nil },
				DisableDiscoveryEnumeration: true,
			}},
			opts:   opts(),
			expect: types.CaseKindDelayEnumerated,
		},
		{
			name: "source errors",
			attrs: []types.Attribute{types.FuncDataAttribute{
				Func: func() ([][]any, error) { return nil, errors.New("db down") },
			}},
			opts:   opts(),
			expect: types.CaseKindDelayEnumerated,
		},
		{
			name: "source panics",
			attrs: []types.Attribute{types.FuncDataAttribute{
				Func: func() ([][]any, error) { panic("bad source") },
			}},
			opts:   opts(),
			expect: types.CaseKindDelayEnumerated,
		},
		{
			name:   "no data",
			attrs:  nil,
			opts:   opts(),
			expect: types.CaseKindExecutionError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := descriptor.NewClass("Calc", newCalc).
				Theory("Takes", (*calc).Takes, descriptor.With(tt.attrs...))
			cases := discoverTheory(t, tt.opts, class, "Takes")
			require.Len(t, cases, 1)
			assert.Equal(t, tt.expect, cases[0].Kind)
			if tt.expect == types.CaseKindExecutionError {
				assert.Equal(t, "No data found for Calc.Takes", cases[0].ErrorMessage)
			}
		})
	}
}

func TestTheoryDropsDuplicateRows(t *testing.T) {
	class := descriptor.NewClass("Calc", newCalc).
		Theory("Takes", (*calc).Takes, descriptor.With(
			types.InlineData(1),
			types.InlineData(1),
			types.InlineData(2)))

	diag := &diagnostics{}
	o := opts()
	o.Diagnostics = diag
	cases := discoverTheory(t, o, class, "Takes")
	require.Len(t, cases, 2)
	require.Len(t, diag.lines, 1)
	assert.True(t, strings.HasPrefix(diag.lines[0], "Skipping test case with duplicate ID"))
}

func TestTheorySkips(t *testing.T) {
	class := descriptor.NewClass("Calc", newCalc).
		Theory("Skipped", (*calc).Takes, descriptor.With(
			types.TheoryAttribute{FactAttribute: types.FactAttribute{Skip: "broken"}},
			types.InlineData(1))).
		Theory("SkippedRows", (*calc).Takes, descriptor.With(
			types.InlineDataAttribute{Values: []any{1}, Skip: "flaky row"},
			types.InlineData(2)))

	cases := discoverTheory(t, opts(), class, "Skipped")
	require.Len(t, cases, 1)
	assert.Equal(t, "broken", cases[0].SkipReason())

	cases = discoverTheory(t, opts(), class, "SkippedRows")
	require.Len(t, cases, 2)
	assert.Equal(t, "flaky row", cases[0].SkipReason())
	assert.Empty(t, cases[1].SkipReason())
}

func TestTheoryResolvesGenericsAndCoerces(t *testing.T) {
	class := descriptor.NewClass("Calc", newCalc).
		Theory("Takes", (*calc).Takes, descriptor.Params("value"), descriptor.TypeParam("T", 0),
			descriptor.With(types.InlineData(42), types.InlineData("s"))).
		Theory("Widen", (*calc).Widen, descriptor.Params("v"), descriptor.With(types.InlineData(7)))

	cases := discoverTheory(t, opts(), class, "Takes")
	require.Len(t, cases, 2)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[int]()}, cases[0].GenericTypes)
	assert.Equal(t, "Calc.Takes[int](value: 42)", cases[0].DisplayName)
	assert.Equal(t, `Calc.Takes[string](value: "s")`, cases[1].DisplayName)

	cases = discoverTheory(t, opts(), class, "Widen")
	require.Len(t, cases, 1)
	assert.IsType(t, int64(0), cases[0].Arguments[0])
}

func TestEnumerate(t *testing.T) {
	class := descriptor.NewClass("Calc", newCalc).
		Theory("Takes", (*calc).Takes, descriptor.With(
			types.InlineDataAttribute{Values: []any{1}, Skip: "later"},
			types.FuncDataAttribute{Func: func() ([][]any, error) { return [][]any{{2}, {3}}, nil }}))

	rows, err := Enumerate(context.Background(), class.Methods()[0])
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "later", rows[0].SkipReason)
	assert.Equal(t, []any{3}, rows[2].Arguments)

	failing := descriptor.NewClass("Calc", newCalc).
		Theory("Takes", (*calc).Takes, descriptor.With(types.FuncDataAttribute{
			Func: func() ([][]any, error) { panic("boom") },
		}))
	_, err = Enumerate(context.Background(), failing.Methods()[0])
	require.ErrorContains(t, err, "boom")
}

func TestFillDefaults(t *testing.T) {
	params := []types.ParameterInfo{
		{Name: "a"},
		{Name: "b", Optional: true, Default: "x"},
		{Name: "c", Optional: true, Default: 3},
	}
	assert.Equal(t, []any{1, "x", 3}, FillDefaults(params, []any{1}))
	assert.Equal(t, []any{1, "y", 3}, FillDefaults(params, []any{1, "y"}))
	assert.Len(t, FillDefaults(params, nil), 0, "required parameter stops filling")
}

type narrow struct{}

func (narrow) Small(v int8)      {}
func (narrow) Whole(v int)       {}
func (narrow) Unsigned(v uint32) {}

func TestTheoryKeepsValuesThatDoNotFit(t *testing.T) {
	class := descriptor.NewClass("Narrow", func() narrow { return narrow{} }).
		Theory("Small", narrow.Small, descriptor.Params("v"), descriptor.With(types.InlineData(300), types.InlineData(44))).
		Theory("Whole", narrow.Whole, descriptor.Params("v"), descriptor.With(types.InlineData(2.9))).
		Theory("Unsigned", narrow.Unsigned, descriptor.Params("v"), descriptor.With(types.InlineData(-1), types.InlineData(7)))

	var diags diagnostics
	o := opts()
	o.Diagnostics = &diags

	small := discoverTheory(t, o, class, "Small")
	require.Len(t, small, 2, "overflowing row must not collide with a real one")
	assert.Equal(t, []any{300}, small[0].Arguments)
	assert.Equal(t, "Narrow.Small(v: 300)", small[0].DisplayName)
	assert.Equal(t, []any{int8(44)}, small[1].Arguments)
	assert.NotEqual(t, small[0].UniqueID, small[1].UniqueID)
	assert.Empty(t, diags.lines)

	whole := discoverTheory(t, o, class, "Whole")
	require.Len(t, whole, 1)
	assert.Equal(t, []any{2.9}, whole[0].Arguments)

	unsigned := discoverTheory(t, o, class, "Unsigned")
	require.Len(t, unsigned, 2)
	assert.Equal(t, []any{-1}, unsigned[0].Arguments)
	assert.Equal(t, []any{uint32(7)}, unsigned[1].Arguments)
}
