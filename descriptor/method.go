package descriptor

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

var errChanType = reflect.TypeFor[<-chan error]()

// Method is a types.MethodInfo backed by a function. The function may be a
// method expression, e.g. (*Suite).TestAdd, whose first parameter is the
// class instance, or a free function for static methods. A context.Context
// parameter directly after the receiver is supplied by the engine.
type Method struct {
	name       string
	fn         reflect.Value
	receiver   reflect.Type
	static     bool
	wantsCtx   bool
	params     []types.ParameterInfo
	typeParams []string
	resolved   []reflect.Type
	attrs      []types.Attribute
	source     types.SourceInfo
}

var _ types.MethodInfo = (*Method)(nil)
var _ types.SourceProvider = (*Method)(nil)

func newMethod(c *Class, name string, fn any, o *options) *Method {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		panic(fmt.Sprintf("descriptor: method %s.%s is %s, not a function", c.name, name, fv.Type()))
	}
	ft := fv.Type()
	m := &Method{
		name:       name,
		fn:         fv,
		static:     true,
		typeParams: o.typeOrder,
		attrs:      o.attrs,
	}

	i := 0
	if c.typ != nil && ft.NumIn() > 0 && ft.In(0) == c.typ {
		m.receiver = c.typ
		m.static = false
		i++
	}
	if ft.NumIn() > i && ft.In(i) == types.ContextType {
		m.wantsCtx = true
		i++
	}
	for pos := 0; i < ft.NumIn(); i, pos = i+1, pos+1 {
		p := types.ParameterInfo{
			Name:             paramName(o, pos),
			Type:             ft.In(i),
			GenericParameter: o.typeParams[pos],
		}
		if def, ok := o.defaults[pos]; ok {
			p.Optional = true
			p.Default = def
		}
		m.params = append(m.params, p)
	}

	if f := runtime.FuncForPC(fv.Pointer()); f != nil {
		if file, line := f.FileLine(f.Entry()); file != "<autogenerated>" {
			m.source = types.SourceInfo{File: file, Line: line}
		}
	}
	return m
}

func (m *Method) Name() string                      { return m.name }
func (m *Method) IsStatic() bool                    { return m.static }
func (m *Method) Parameters() []types.ParameterInfo { return m.params }
func (m *Method) GenericParameters() []string       { return m.typeParams }
func (m *Method) ResolvedTypes() []reflect.Type     { return m.resolved }
func (m *Method) Attributes() []types.Attribute     { return m.attrs }
func (m *Method) SourceInfo() types.SourceInfo      { return m.source }

// MakeGeneric returns a copy of the method with its type parameters bound.
// Declared parameter types are kept; bound types must be assignable to them.
func (m *Method) MakeGeneric(typeArgs []reflect.Type) (types.MethodInfo, error) {
	if len(typeArgs) != len(m.typeParams) {
		return nil, fmt.Errorf("method %s has %d type parameters, got %d type arguments", m.name, len(m.typeParams), len(typeArgs))
	}
	bound := make(map[string]reflect.Type, len(typeArgs))
	for i, name := range m.typeParams {
		bound[name] = typeArgs[i]
	}
	clone := *m
	clone.resolved = append([]reflect.Type(nil), typeArgs...)
	clone.params = make([]types.ParameterInfo, len(m.params))
	for i, p := range m.params {
		if t, ok := bound[p.GenericParameter]; ok && t != nil {
			if !t.AssignableTo(p.Type) {
				return nil, fmt.Errorf("type %s does not satisfy parameter %s of type %s", t, p.Name, p.Type)
			}
		}
		clone.params[i] = p
	}
	return &clone, nil
}

// Invoke calls the method on instance. The returned value is nil, or a
// <-chan error to be awaited, or the method's first non-error result.
func (m *Method) Invoke(ctx context.Context, instance any, args []any) (any, error) {
	in := make([]reflect.Value, 0, len(args)+2)
	if !m.static {
		if instance == nil {
			return nil, fmt.Errorf("method %s requires an instance of %s", m.name, m.receiver)
		}
		iv := reflect.ValueOf(instance)
		if !iv.Type().AssignableTo(m.receiver) {
			return nil, fmt.Errorf("instance of type %s cannot call method %s of %s", iv.Type(), m.name, m.receiver)
		}
		in = append(in, iv)
	}
	if m.wantsCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	params, err := buildArgs(m.params, args)
	if err != nil {
		return nil, err
	}
	in = append(in, params...)

	out := m.fn.Call(in)
	var result any
	for _, o := range out {
		switch {
		case o.Type() == errorType:
			if !o.IsNil() {
				return nil, o.Interface().(error)
			}
		case o.Kind() == reflect.Chan && o.Type().Elem() == errorType && o.Type().ChanDir()&reflect.RecvDir != 0:
			if o.IsNil() {
				continue
			}
			result = o.Convert(errChanType).Interface()
		case result == nil:
			result = o.Interface()
		}
	}
	return result, nil
}

func (m *Method) String() string {
	if len(m.resolved) == 0 {
		return m.name
	}
	names := make([]string, len(m.resolved))
	for i, t := range m.resolved {
		names[i] = t.String()
	}
	return m.name + "[" + strings.Join(names, ",") + "]"
}
