// Package descriptor describes test assemblies with plain Go values. It is the
// reflect-backed implementation of the introspection interfaces in package
// types: classes are built from constructor functions and test methods from
// method expressions or free functions.
//
//	calc := descriptor.NewClass("CalculatorTests", NewCalculatorTests)
//	calc.Fact("Adds", (*CalculatorTests).Adds)
//	calc.Theory("AddsRows", (*CalculatorTests).AddsRows,
//		descriptor.Params("a", "b", "sum"),
//		descriptor.With(types.InlineData(1, 2, 3)))
//	assembly := descriptor.NewAssembly("calc", "calc.test").Add(calc)
package descriptor

import (
	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Assembly is a types.AssemblyInfo built in code.
type Assembly struct {
	name  string
	path  string
	attrs []types.Attribute
	types []types.TypeInfo
}

var _ types.AssemblyInfo = (*Assembly)(nil)

// NewAssembly returns an empty assembly.
func NewAssembly(name, path string, attrs ...types.Attribute) *Assembly {
	return &Assembly{name: name, path: path, attrs: attrs}
}

// Add appends types to the assembly.
func (a *Assembly) Add(typeInfos ...types.TypeInfo) *Assembly {
	a.types = append(a.types, typeInfos...)
	return a
}

func (a *Assembly) Name() string                  { return a.name }
func (a *Assembly) Path() string                  { return a.path }
func (a *Assembly) Attributes() []types.Attribute { return a.attrs }
func (a *Assembly) Types() []types.TypeInfo       { return a.types }

// Option configures a class, constructor or method descriptor.
type Option func(*options)

type options struct {
	attrs      []types.Attribute
	paramNames []string
	typeParams map[int]string
	typeOrder  []string
	defaults   map[int]any
	private    bool
}

func collect(opts []Option) *options {
	o := &options{typeParams: map[int]string{}, defaults: map[int]any{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// With attaches attributes.
func With(attrs ...types.Attribute) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

// Params names the declared parameters in order. Unnamed parameters are
// called arg0, arg1, ...
func Params(names ...string) Option {
	return func(o *options) { o.paramNames = names }
}

// TypeParam declares a method type parameter and the parameter positions
// declared with it. Those parameters should have type any; the concrete type
// is inferred from the data row.
func TypeParam(name string, positions ...int) Option {
	return func(o *options) {
		o.typeOrder = append(o.typeOrder, name)
		for _, p := range positions {
			o.typeParams[p] = name
		}
	}
}

// Default makes the parameter at position optional with the given value.
func Default(position int, value any) Option {
	return func(o *options) { o.defaults[position] = value }
}

// Private marks a constructor as not public.
func Private() Option {
	return func(o *options) { o.private = true }
}
