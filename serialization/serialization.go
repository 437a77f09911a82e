// Package serialization renders test-case arguments into a canonical text
// form. The encoding feeds test-case unique IDs and lets discovered theory
// rows be persisted and restored with full type fidelity.
//
// Every encoded value has the form "<tag>:<payload>". Tags name the Go type
// (bool, int8 ... uint64, float32, float64, string, bytes, time, duration,
// []<tag>, [N]<tag>, any, nil) or a registered custom type ("custom.<name>").
package serialization

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Serializable is implemented by argument types that can encode themselves.
// Types must also be registered with Register to be decodable.
type Serializable interface {
	SerializeArgument() (string, error)
}

// Decoder restores a value from the payload produced by SerializeArgument.
type Decoder func(payload string) (any, error)

type customType struct {
	name   string
	decode Decoder
}

var custom = struct {
	sync.RWMutex
	byType map[reflect.Type]customType
	byName map[string]reflect.Type
}{
	byType: make(map[reflect.Type]customType),
	byName: make(map[string]reflect.Type),
}

// Register makes the type of sample serialisable under name. The type must
// implement Serializable.
func Register(name string, sample Serializable, decode Decoder) {
	if name == "" || decode == nil {
		panic("serialization: Register requires a name and a decoder")
	}
	t := reflect.TypeOf(sample)
	custom.Lock()
	defer custom.Unlock()
	if existing, ok := custom.byName[name]; ok && existing != t {
		panic(fmt.Sprintf("serialization: name %q already registered for %s", name, existing))
	}
	custom.byType[t] = customType{name: name, decode: decode}
	custom.byName[name] = t
}

// UnsupportedTypeError reports a value that has no canonical encoding.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("cannot serialize value of type %s", e.Type)
}

var (
	timeType     = reflect.TypeFor[time.Time]()
	durationType = reflect.TypeFor[time.Duration]()
	bytesType    = reflect.TypeFor[[]byte]()
	anyType      = reflect.TypeFor[any]()
)

var scalarTags = map[string]reflect.Type{
	"bool":     reflect.TypeFor[bool](),
	"int":      reflect.TypeFor[int](),
	"int8":     reflect.TypeFor[int8](),
	"int16":    reflect.TypeFor[int16](),
	"int32":    reflect.TypeFor[int32](),
	"int64":    reflect.TypeFor[int64](),
	"uint":     reflect.TypeFor[uint](),
	"uint8":    reflect.TypeFor[uint8](),
	"uint16":   reflect.TypeFor[uint16](),
	"uint32":   reflect.TypeFor[uint32](),
	"uint64":   reflect.TypeFor[uint64](),
	"float32":  reflect.TypeFor[float32](),
	"float64":  reflect.TypeFor[float64](),
	"string":   reflect.TypeFor[string](),
	"bytes":    bytesType,
	"time":     timeType,
	"duration": durationType,
	"any":      anyType,
}

// Serialize encodes v.
func Serialize(v any) (string, error) {
	if v == nil {
		return "nil:", nil
	}
	rv := reflect.ValueOf(v)
	tag, err := tagOf(rv.Type())
	if err != nil {
		return "", err
	}
	payload, err := encodeValue(rv)
	if err != nil {
		return "", err
	}
	return tag + ":" + payload, nil
}

// SerializeArguments encodes a row of arguments.
func SerializeArguments(args []any) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		s, err := Serialize(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// IsSerializable reports whether v has a canonical encoding.
func IsSerializable(v any) bool {
	_, err := Serialize(v)
	return err == nil
}

// Deserialize decodes a value produced by Serialize.
func Deserialize(s string) (any, error) {
	tag, payload, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("malformed serialized value %q", s)
	}
	if tag == "nil" {
		return nil, nil
	}
	t, err := typeOfTag(tag)
	if err != nil {
		return nil, err
	}
	v, err := decodeValue(t, payload)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

func tagOf(t reflect.Type) (string, error) {
	custom.RLock()
	ct, ok := custom.byType[t]
	custom.RUnlock()
	if ok {
		return "custom." + ct.name, nil
	}
	switch t {
	case timeType:
		return "time", nil
	case durationType:
		return "duration", nil
	case bytesType:
		return "bytes", nil
	case anyType:
		return "any", nil
	}
	switch t.Kind() {
	case reflect.Slice:
		elem, err := tagOf(t.Elem())
		if err != nil {
			return "", err
		}
		return "[]" + elem, nil
	case reflect.Array:
		elem, err := tagOf(t.Elem())
		if err != nil {
			return "", err
		}
		return "[" + strconv.Itoa(t.Len()) + "]" + elem, nil
	}
	// Named types (type Celsius float64) are not the same type as their
	// underlying kind and would not round-trip.
	if t.PkgPath() != "" {
		return "", &UnsupportedTypeError{Type: t}
	}
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return t.Kind().String(), nil
	}
	return "", &UnsupportedTypeError{Type: t}
}

func typeOfTag(tag string) (reflect.Type, error) {
	if t, ok := scalarTags[tag]; ok {
		return t, nil
	}
	if name, ok := strings.CutPrefix(tag, "custom."); ok {
		custom.RLock()
		t, ok := custom.byName[name]
		custom.RUnlock()
		if !ok {
			return nil, fmt.Errorf("unknown custom type %q", name)
		}
		return t, nil
	}
	if elem, ok := strings.CutPrefix(tag, "[]"); ok {
		et, err := typeOfTag(elem)
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(et), nil
	}
	if strings.HasPrefix(tag, "[") {
		end := strings.IndexByte(tag, ']')
		if end < 0 {
			return nil, fmt.Errorf("malformed array tag %q", tag)
		}
		n, err := strconv.Atoi(tag[1:end])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("malformed array length in %q", tag)
		}
		et, err := typeOfTag(tag[end+1:])
		if err != nil {
			return nil, err
		}
		return reflect.ArrayOf(n, et), nil
	}
	return nil, fmt.Errorf("unknown type tag %q", tag)
}

const nilSlice = "~"

func encodeValue(v reflect.Value) (string, error) {
	t := v.Type()
	custom.RLock()
	_, isCustom := custom.byType[t]
	custom.RUnlock()
	if isCustom {
		s, ok := v.Interface().(Serializable)
		if !ok {
			return "", &UnsupportedTypeError{Type: t}
		}
		payload, err := s.SerializeArgument()
		if err != nil {
			return "", err
		}
		return base64.StdEncoding.EncodeToString([]byte(payload)), nil
	}

	switch t {
	case timeType:
		return v.Interface().(time.Time).Format(time.RFC3339Nano), nil
	case durationType:
		return strconv.FormatInt(v.Int(), 10), nil
	case bytesType:
		if v.IsNil() {
			return nilSlice, nil
		}
		return base64.StdEncoding.EncodeToString(v.Bytes()), nil
	case anyType:
		if v.IsNil() {
			return "nil:", nil
		}
		// Interface elements carry their own tag.
		return Serialize(v.Interface())
	}

	switch t.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'g', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64), nil
	case reflect.String:
		return base64.StdEncoding.EncodeToString([]byte(v.String())), nil
	case reflect.Slice, reflect.Array:
		if t.Kind() == reflect.Slice && v.IsNil() {
			return nilSlice, nil
		}
		items := make([]string, v.Len())
		for i := range items {
			item, err := encodeValue(v.Index(i))
			if err != nil {
				return "", err
			}
			items[i] = base64.StdEncoding.EncodeToString([]byte(item))
		}
		return strings.Join(items, ","), nil
	}
	return "", &UnsupportedTypeError{Type: t}
}

func decodeValue(t reflect.Type, payload string) (reflect.Value, error) {
	custom.RLock()
	ct, isCustom := custom.byType[t]
	custom.RUnlock()
	if isCustom {
		raw, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return reflect.Value{}, err
		}
		v, err := ct.decode(string(raw))
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(v), nil
	}

	switch t {
	case timeType:
		ts, err := time.Parse(time.RFC3339Nano, payload)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(ts), nil
	case durationType:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(time.Duration(n)), nil
	case bytesType:
		if payload == nilSlice {
			return reflect.Zero(t), nil
		}
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(b), nil
	case anyType:
		inner, err := Deserialize(payload)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(anyType).Elem()
		if inner != nil {
			out.Set(reflect.ValueOf(inner))
		}
		return out, nil
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(payload)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(payload, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(payload, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(payload, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetFloat(f)
	case reflect.String:
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return reflect.Value{}, err
		}
		out.SetString(string(b))
	case reflect.Slice, reflect.Array:
		if payload == nilSlice && t.Kind() == reflect.Slice {
			return out, nil
		}
		var items []string
		if payload != "" {
			items = strings.Split(payload, ",")
		}
		if t.Kind() == reflect.Array && len(items) != t.Len() {
			return reflect.Value{}, fmt.Errorf("array of length %d has %d items", t.Len(), len(items))
		}
		if t.Kind() == reflect.Slice {
			out = reflect.MakeSlice(t, len(items), len(items))
		}
		for i, item := range items {
			raw, err := base64.StdEncoding.DecodeString(item)
			if err != nil {
				return reflect.Value{}, err
			}
			ev, err := decodeValue(t.Elem(), string(raw))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
	default:
		return reflect.Value{}, &UnsupportedTypeError{Type: t}
	}
	return out, nil
}
