package discovery

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

const (
	maxStringLength = 50
	maxSliceItems   = 5
	ellipsis        = "..."
)

// BaseDisplayName returns the display-name override from the fact attribute,
// or "Class.Method".
func BaseDisplayName(method *types.TestMethod, fact types.FactAttribute) string {
	if fact.DisplayName != "" {
		return fact.DisplayName
	}
	return method.FullName()
}

// FormatDisplayName renders "Base[T1,T2](p1: v1, p2: v2)". Arguments beyond
// the declared parameters are shown as "???: value" and missing arguments as
// "name: ???".
func FormatDisplayName(base string, params []types.ParameterInfo, args []any, genericTypes []reflect.Type) string {
	var sb strings.Builder
	sb.WriteString(base)
	if len(genericTypes) > 0 {
		names := make([]string, len(genericTypes))
		for i, t := range genericTypes {
			names[i] = TypeName(t)
		}
		sb.WriteString("[" + strings.Join(names, ",") + "]")
	}
	if len(args) == 0 {
		return sb.String()
	}

	n := max(len(params), len(args))
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		name := "???"
		if i < len(params) {
			name = params[i].Name
		}
		value := "???"
		if i < len(args) {
			value = FormatValue(args[i])
		}
		parts[i] = name + ": " + value
	}
	sb.WriteString("(" + strings.Join(parts, ", ") + ")")
	return sb.String()
}

// TypeName renders a type for display; nil is shown as "any".
func TypeName(t reflect.Type) string {
	if t == nil {
		return "any"
	}
	return t.String()
}

// FormatValue renders an argument for a display name.
func FormatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch x := v.(type) {
	case string:
		return strconv.Quote(truncate(x))
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case fmt.Stringer:
		return truncate(x.String())
	case error:
		return truncate(x.Error())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "null"
		}
		return formatSlice(rv)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.Func:
		return rv.Type().String()
	case reflect.Pointer:
		if rv.IsNil() {
			return "null"
		}
	}
	return truncate(fmt.Sprintf("%v", v))
}

func formatSlice(rv reflect.Value) string {
	n := rv.Len()
	items := make([]string, 0, min(n, maxSliceItems)+1)
	for i := 0; i < n && i < maxSliceItems; i++ {
		items = append(items, FormatValue(rv.Index(i).Interface()))
	}
	if n > maxSliceItems {
		items = append(items, ellipsis)
	}
	return "[" + strings.Join(items, ", ") + "]"
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxStringLength {
		return s
	}
	return string(r[:maxStringLength]) + ellipsis
}
