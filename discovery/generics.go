package discovery

import (
	"reflect"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// ResolveGenericTypes infers each method type parameter from the first
// non-nil argument declared with it. Parameters that cannot be inferred
// resolve to any.
func ResolveGenericTypes(method types.MethodInfo, args []any) []reflect.Type {
	typeParams := method.GenericParameters()
	if len(typeParams) == 0 {
		return nil
	}
	params := method.Parameters()
	resolved := make([]reflect.Type, len(typeParams))
	for i, name := range typeParams {
		resolved[i] = types.AnyType
		for j, p := range params {
			if p.GenericParameter == name && j < len(args) && args[j] != nil {
				resolved[i] = reflect.TypeOf(args[j])
				break
			}
		}
	}
	return resolved
}

// ResolveMethod binds a generic method to the types inferred from args.
// Non-generic methods are returned unchanged.
func ResolveMethod(method types.MethodInfo, args []any) (types.MethodInfo, []reflect.Type, error) {
	typeArgs := ResolveGenericTypes(method, args)
	if typeArgs == nil {
		return method, nil, nil
	}
	bound, err := method.MakeGeneric(typeArgs)
	if err != nil {
		return nil, nil, err
	}
	return bound, typeArgs, nil
}

// CoerceArguments converts numeric and string arguments to the declared
// parameter types when the value survives the conversion, e.g. an untyped
// literal int in a data row for an int64 parameter. Other arguments,
// including values that would overflow, lose a fraction or change sign, are
// returned as-is; the invoker reports mismatches.
func CoerceArguments(params []types.ParameterInfo, args []any) []any {
	out := make([]any, len(args))
	copy(out, args)
	for i := 0; i < len(params) && i < len(out); i++ {
		p := params[i]
		if out[i] == nil || p.Type == nil || p.GenericParameter != "" {
			continue
		}
		v := reflect.ValueOf(out[i])
		if v.Type() == p.Type || v.Type().AssignableTo(p.Type) {
			continue
		}
		if converted, ok := types.ConvertValue(v, p.Type); ok {
			out[i] = converted.Interface()
		}
	}
	return out
}

// FillDefaults appends the default value of every trailing optional
// parameter not covered by args.
func FillDefaults(params []types.ParameterInfo, args []any) []any {
	if len(args) >= len(params) {
		return args
	}
	out := append([]any(nil), args...)
	for _, p := range params[len(args):] {
		if !p.Optional {
			break
		}
		out = append(out, p.Default)
	}
	return out
}
