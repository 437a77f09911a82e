package descriptor

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

type counter struct {
	base int
}

func newCounter(base int) *counter { return &counter{base: base} }

func (c *counter) Add(a, b int) int { return c.base + a + b }

func (c *counter) Fails() error { return errors.New("failed") }

func (c *counter) WithContext(ctx context.Context, name string) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	return nil
}

func (c *counter) Async() <-chan error {
	ch := make(chan error, 1)
	ch <- nil
	return ch
}

func (c *counter) Bidirectional() chan error {
	ch := make(chan error, 1)
	ch <- errors.New("async failure")
	return ch
}

func staticEcho(s string) string { return s }

func TestClassDescribesConstructor(t *testing.T) {
	class := NewClass("Counter", newCounter, Params("base"), With(types.TraitAttribute{Name: "k", Value: "v"}))
	assert.Equal(t, "Counter", class.Name())
	assert.Equal(t, reflect.TypeFor[*counter](), class.Type())
	require.Len(t, class.Attributes(), 1)

	ctors := class.Constructors()
	require.Len(t, ctors, 1)
	assert.True(t, ctors[0].IsPublic())
	require.Len(t, ctors[0].Parameters(), 1)
	assert.Equal(t, "int base", ctors[0].Parameters()[0].String())

	inst, err := ctors[0].Invoke([]any{5})
	require.NoError(t, err)
	assert.Equal(t, 5, inst.(*counter).base)

	_, err = ctors[0].Invoke([]any{"five"})
	require.ErrorContains(t, err, "cannot be converted")

	_, err = ctors[0].Invoke(nil)
	require.ErrorContains(t, err, "expected 1 arguments")
}

func TestConstructorReturningError(t *testing.T) {
	sentinel := errors.New("no database")
	class := NewClass("Db", func() (*counter, error) { return nil, sentinel })
	_, err := class.Constructors()[0].Invoke(nil)
	assert.ErrorIs(t, err, sentinel)
}

func TestAddConstructor(t *testing.T) {
	class := NewClass("Counter", newCounter).
		AddConstructor(func() *counter { return &counter{} }, Private())
	require.Len(t, class.Constructors(), 2)
	assert.False(t, class.Constructors()[1].IsPublic())

	assert.Panics(t, func() {
		class.AddConstructor(func() *types.Test { return nil })
	})
	assert.Panics(t, func() { NewClass("Bad", 42) })
	assert.Panics(t, func() { NewClass("Bad", func() {}) })
}

func TestMethodInvoke(t *testing.T) {
	class := NewClass("Counter", newCounter).
		Fact("Fails", (*counter).Fails).
		Theory("Add", (*counter).Add, Params("a", "b")).
		Fact("WithContext", (*counter).WithContext).
		Fact("Async", (*counter).Async).
		Fact("Bidirectional", (*counter).Bidirectional)
	methods := class.Methods()
	require.Len(t, methods, 5)

	inst := newCounter(10)
	ctx := context.Background()

	_, err := methods[0].Invoke(ctx, inst, nil)
	require.EqualError(t, err, "failed")

	add := methods[1]
	assert.False(t, add.IsStatic())
	require.Len(t, add.Parameters(), 2)
	assert.Equal(t, "b", add.Parameters()[1].Name)
	_, ok := types.FindAttribute[types.TheoryAttribute](add.Attributes())
	assert.True(t, ok)

	res, err := add.Invoke(ctx, inst, []any{1, int64(2)})
	require.NoError(t, err)
	assert.Equal(t, 13, res)

	_, err = add.Invoke(ctx, nil, []any{1, 2})
	require.ErrorContains(t, err, "requires an instance")

	withCtx := methods[2]
	require.Len(t, withCtx.Parameters(), 1, "context is not a declared parameter")
	_, err = withCtx.Invoke(ctx, inst, []any{"x"})
	require.NoError(t, err)

	res, err = methods[3].Invoke(ctx, inst, nil)
	require.NoError(t, err)
	ch, ok := res.(<-chan error)
	require.True(t, ok)
	assert.NoError(t, <-ch)

	res, err = methods[4].Invoke(ctx, inst, nil)
	require.NoError(t, err)
	ch, ok = res.(<-chan error)
	require.True(t, ok)
	assert.EqualError(t, <-ch, "async failure")
}

func TestStaticMethods(t *testing.T) {
	class := NewStaticClass("Statics").Fact("Echo", staticEcho)
	m := class.Methods()[0]
	assert.True(t, m.IsStatic())
	assert.Empty(t, class.Constructors())

	res, err := m.Invoke(context.Background(), nil, []any{"hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res)

	src := m.(types.SourceProvider).SourceInfo()
	assert.Contains(t, src.File, "descriptor_test.go")
	assert.Positive(t, src.Line)
}

func TestNilArgumentsBecomeZeroValues(t *testing.T) {
	var got *counter
	class := NewStaticClass("Nil").Fact("Take", func(c *counter) { got = c })
	_, err := class.Methods()[0].Invoke(context.Background(), nil, []any{nil})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGenericMethods(t *testing.T) {
	class := NewStaticClass("Generic").
		Theory("Identity", func(v any) any { return v }, Params("value"), TypeParam("T", 0))
	m := class.Methods()[0]
	assert.Equal(t, []string{"T"}, m.GenericParameters())
	assert.Equal(t, "T", m.Parameters()[0].GenericParameter)
	assert.Nil(t, m.ResolvedTypes())

	bound, err := m.MakeGeneric([]reflect.Type{reflect.TypeFor[int]()})
	require.NoError(t, err)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[int]()}, bound.ResolvedTypes())
	assert.Equal(t, "Identity[int]", bound.(*Method).String())
	assert.Nil(t, m.ResolvedTypes(), "original is unchanged")

	_, err = m.MakeGeneric(nil)
	require.Error(t, err)
}

func TestOptionalParameters(t *testing.T) {
	class := NewStaticClass("Opt").
		Theory("Greet", func(name, greeting string) {}, Params("name", "greeting"), Default(1, "hello"))
	p := class.Methods()[0].Parameters()
	assert.False(t, p[0].Optional)
	assert.True(t, p[1].Optional)
	assert.Equal(t, "hello", p[1].Default)
}

func TestAssemblyAndDefinition(t *testing.T) {
	fixture := NewClass("DbFixture", newCounter)
	def := NewDefinition("DbCollection", types.CollectionDefinitionAttribute{Name: "db"}, fixture)
	class := NewClass("Counter", newCounter).Attr(types.CollectionAttribute{Name: "db"})

	asm := NewAssembly("calc", "/tmp/calc.test", types.CollectionBehaviorAttribute{PerAssembly: true}).Add(def, class)
	assert.Equal(t, "calc", asm.Name())
	assert.Equal(t, "/tmp/calc.test", asm.Path())
	assert.Len(t, asm.Types(), 2)
	assert.Len(t, asm.Attributes(), 1)

	defAttr, ok := types.FindAttribute[types.CollectionDefinitionAttribute](def.Attributes())
	require.True(t, ok)
	assert.Equal(t, "db", defAttr.Name)
	fixtures := types.FindAttributes[types.CollectionFixtureAttribute](def.Attributes())
	require.Len(t, fixtures, 1)
	assert.Same(t, fixture, fixtures[0].Fixture)
}
