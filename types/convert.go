package types

import "reflect"

// ConvertValue converts v to the type to when the value survives the
// conversion unchanged. Only numeric-to-numeric and string-to-string
// conversions are considered; numeric ones that overflow, drop a fraction,
// lose float precision or flip the sign are refused.
func ConvertValue(v reflect.Value, to reflect.Type) (reflect.Value, bool) {
	from := v.Type()
	if !from.ConvertibleTo(to) {
		return reflect.Value{}, false
	}
	if from.Kind() == reflect.String && to.Kind() == reflect.String {
		return v.Convert(to), true
	}
	if !numericKind(from.Kind()) || !numericKind(to.Kind()) {
		return reflect.Value{}, false
	}

	converted := v.Convert(to)
	if sign(converted) != sign(v) {
		return reflect.Value{}, false
	}
	back := converted.Convert(from)
	if back.Interface() != v.Interface() {
		return reflect.Value{}, false
	}
	return converted, true
}

func numericKind(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

func sign(v reflect.Value) int {
	switch {
	case v.CanInt():
		switch x := v.Int(); {
		case x < 0:
			return -1
		case x > 0:
			return 1
		}
	case v.CanUint():
		if v.Uint() > 0 {
			return 1
		}
	case v.CanFloat():
		switch x := v.Float(); {
		case x < 0:
			return -1
		case x > 0:
			return 1
		}
	}
	return 0
}
