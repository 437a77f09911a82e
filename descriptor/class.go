package descriptor

import (
	"fmt"
	"reflect"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

var errorType = reflect.TypeFor[error]()

// Class is a types.TypeInfo built from constructor functions.
type Class struct {
	name    string
	typ     reflect.Type
	attrs   []types.Attribute
	ctors   []types.ConstructorInfo
	methods []types.MethodInfo
}

var _ types.TypeInfo = (*Class)(nil)

// NewClass describes a class constructed by ctor. ctor must be a function
// returning the instance, optionally followed by an error. A nil ctor
// describes a class with no constructor; its methods must be static.
func NewClass(name string, ctor any, opts ...Option) *Class {
	o := collect(opts)
	c := &Class{name: name, attrs: o.attrs}
	if ctor != nil {
		cons := newConstructor(name, ctor, o)
		c.typ = cons.fn.Type().Out(0)
		c.ctors = append(c.ctors, cons)
	}
	return c
}

// NewStaticClass describes a class whose methods are all free functions.
func NewStaticClass(name string, opts ...Option) *Class {
	return NewClass(name, nil, opts...)
}

// NewDefinition describes a collection definition type.
func NewDefinition(name string, def types.CollectionDefinitionAttribute, fixtures ...types.TypeInfo) *Class {
	c := NewStaticClass(name, With(def))
	for _, f := range fixtures {
		c.attrs = append(c.attrs, types.CollectionFixtureAttribute{Fixture: f})
	}
	return c
}

// AddConstructor adds another way of constructing the class. It must
// produce the same type as the primary constructor.
func (c *Class) AddConstructor(ctor any, opts ...Option) *Class {
	cons := newConstructor(c.name, ctor, collect(opts))
	if c.typ == nil {
		c.typ = cons.fn.Type().Out(0)
	} else if out := cons.fn.Type().Out(0); out != c.typ {
		panic(fmt.Sprintf("descriptor: constructor for %s returns %s, expected %s", c.name, out, c.typ))
	}
	c.ctors = append(c.ctors, cons)
	return c
}

// Method adds a method with the given attributes.
func (c *Class) Method(name string, fn any, opts ...Option) *Class {
	c.methods = append(c.methods, newMethod(c, name, fn, collect(opts)))
	return c
}

// Fact adds a fact. A FactAttribute is added unless one is given.
func (c *Class) Fact(name string, fn any, opts ...Option) *Class {
	o := collect(opts)
	if _, ok := types.FindAttribute[types.FactAttribute](o.attrs); !ok {
		o.attrs = append([]types.Attribute{types.FactAttribute{}}, o.attrs...)
	}
	c.methods = append(c.methods, newMethod(c, name, fn, o))
	return c
}

// Theory adds a theory. A TheoryAttribute is added unless one is given.
func (c *Class) Theory(name string, fn any, opts ...Option) *Class {
	o := collect(opts)
	if _, ok := types.FindAttribute[types.TheoryAttribute](o.attrs); !ok {
		o.attrs = append([]types.Attribute{types.TheoryAttribute{}}, o.attrs...)
	}
	c.methods = append(c.methods, newMethod(c, name, fn, o))
	return c
}

// Attr attaches class-level attributes.
func (c *Class) Attr(attrs ...types.Attribute) *Class {
	c.attrs = append(c.attrs, attrs...)
	return c
}

func (c *Class) Name() string                          { return c.name }
func (c *Class) Type() reflect.Type                    { return c.typ }
func (c *Class) Attributes() []types.Attribute         { return c.attrs }
func (c *Class) Methods() []types.MethodInfo           { return c.methods }
func (c *Class) Constructors() []types.ConstructorInfo { return c.ctors }
func (c *Class) String() string                        { return c.name }

// Constructor is a types.ConstructorInfo backed by a function.
type Constructor struct {
	owner  string
	fn     reflect.Value
	params []types.ParameterInfo
	public bool
}

var _ types.ConstructorInfo = (*Constructor)(nil)

func newConstructor(owner string, ctor any, o *options) *Constructor {
	fn := reflect.ValueOf(ctor)
	ft := fn.Type()
	if ft.Kind() != reflect.Func {
		panic(fmt.Sprintf("descriptor: constructor for %s is %s, not a function", owner, ft))
	}
	if ft.NumOut() == 0 || ft.NumOut() > 2 || (ft.NumOut() == 2 && ft.Out(1) != errorType) {
		panic(fmt.Sprintf("descriptor: constructor for %s must return T or (T, error)", owner))
	}
	params := make([]types.ParameterInfo, ft.NumIn())
	for i := range params {
		params[i] = types.ParameterInfo{Name: paramName(o, i), Type: ft.In(i)}
	}
	return &Constructor{owner: owner, fn: fn, params: params, public: !o.private}
}

func (c *Constructor) IsPublic() bool                    { return c.public }
func (c *Constructor) Parameters() []types.ParameterInfo { return c.params }

func (c *Constructor) Invoke(args []any) (any, error) {
	in, err := buildArgs(c.params, args)
	if err != nil {
		return nil, fmt.Errorf("constructing %s: %w", c.owner, err)
	}
	out := c.fn.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

func paramName(o *options, i int) string {
	if i < len(o.paramNames) && o.paramNames[i] != "" {
		return o.paramNames[i]
	}
	return fmt.Sprintf("arg%d", i)
}

// buildArgs converts args to call values for params. Nil becomes the zero
// value; assignable values pass through; numeric and string values are
// converted when they survive the conversion.
func buildArgs(params []types.ParameterInfo, args []any) ([]reflect.Value, error) {
	if len(args) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(args))
	}
	in := make([]reflect.Value, len(params))
	for i, p := range params {
		v, err := argValue(p, args[i])
		if err != nil {
			return nil, err
		}
		in[i] = v
	}
	return in, nil
}

func argValue(p types.ParameterInfo, arg any) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(p.Type), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(p.Type) {
		return v, nil
	}
	if converted, ok := types.ConvertValue(v, p.Type); ok {
		return converted, nil
	}
	return reflect.Value{}, fmt.Errorf("object %v of type %s cannot be converted to type %s for parameter %s", arg, v.Type(), p.Type, p.Name)
}
