package packify

import (
	"fmt"
	"math/big"
	"reflect"
)

// Unmarshal decodes data and stores the result in the value pointed to by out.
// See Assign for the conversions applied.
func Unmarshal(data []byte, reg Registry, out any) error {
	v, err := Unpack(data, reg)
	if err != nil {
		return err
	}
	return Assign(out, v)
}

// Convert returns v converted to T. See Assign.
func Convert[T any](v any) (T, error) {
	var out T
	err := Assign(&out, v)
	return out, err
}

// AssignField stores the value under key in m into dst. A missing key leaves
// dst untouched.
func AssignField(m *Map, key string, dst any) error {
	v, ok := m.Get(key)
	if !ok {
		return nil
	}
	if err := Assign(dst, v); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}

// Assign stores a decoded value into the variable dst points to. Integers are
// range-checked against the target width, sequences and sets fill slices and
// arrays element by element, and a *Map fills a Go map. Null zeroes the target.
func Assign(dst any, v any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("packify: assign target must be a non-nil pointer, got %T", dst)
	}
	return assignValue(rv.Elem(), v)
}

func assignValue(dst reflect.Value, v any) error {
	if v == nil {
		dst.SetZero()
		return nil
	}
	sv := reflect.ValueOf(v)
	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if sv.Kind() == reflect.Pointer && !sv.IsNil() && sv.Elem().Type().AssignableTo(dst.Type()) {
		dst.Set(sv.Elem())
		return nil
	}

	switch dst.Kind() {
	case reflect.Pointer:
		n := reflect.New(dst.Type().Elem())
		if err := assignValue(n.Elem(), v); err != nil {
			return err
		}
		dst.Set(n)
		return nil
	case reflect.Bool:
		if b, ok := v.(bool); ok {
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := v.(int64); ok {
			if dst.OverflowInt(i) {
				return fmt.Errorf("packify: %d overflows %s", i, dst.Type())
			}
			dst.SetInt(i)
			return nil
		}
		if _, ok := v.(*big.Int); ok {
			return fmt.Errorf("packify: %s overflows %s", v, dst.Type())
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		var u uint64
		switch x := v.(type) {
		case int64:
			if x < 0 {
				return fmt.Errorf("packify: %d overflows %s", x, dst.Type())
			}
			u = uint64(x)
		case *big.Int:
			if x.Sign() < 0 || !x.IsUint64() {
				return fmt.Errorf("packify: %s overflows %s", x, dst.Type())
			}
			u = x.Uint64()
		default:
			return cannotAssign(v, dst)
		}
		if dst.OverflowUint(u) {
			return fmt.Errorf("packify: %d overflows %s", u, dst.Type())
		}
		dst.SetUint(u)
		return nil
	case reflect.Float32, reflect.Float64:
		if f, ok := v.(float64); ok {
			if dst.OverflowFloat(f) {
				return fmt.Errorf("packify: %g overflows %s", f, dst.Type())
			}
			dst.SetFloat(f)
			return nil
		}
	case reflect.String:
		if s, ok := v.(string); ok {
			dst.SetString(s)
			return nil
		}
	case reflect.Slice:
		return assignSlice(dst, v)
	case reflect.Array:
		return assignArray(dst, v)
	case reflect.Map:
		return assignMap(dst, v)
	case reflect.Struct:
		// Integers that fit in 64 bits decode as int64 even when the target is big.Int.
		if i, ok := v.(int64); ok && dst.Type() == bigIntType {
			dst.Set(reflect.ValueOf(big.NewInt(i)).Elem())
			return nil
		}
	}
	return cannotAssign(v, dst)
}

var bigIntType = reflect.TypeOf(big.Int{})

func cannotAssign(v any, dst reflect.Value) error {
	return fmt.Errorf("packify: cannot assign %T to %s", v, dst.Type())
}

func sequenceItems(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case Tuple:
		return x, true
	case *Set:
		return x.Items(), true
	default:
		return nil, false
	}
}

func blobBytes(v any) ([]byte, bool) {
	switch x := v.(type) {
	case []byte:
		return x, true
	case ByteArray:
		return x, true
	default:
		return nil, false
	}
}

func assignSlice(dst reflect.Value, v any) error {
	if dst.Type().Elem().Kind() == reflect.Uint8 {
		if b, ok := blobBytes(v); ok {
			out := reflect.MakeSlice(dst.Type(), len(b), len(b))
			reflect.Copy(out, reflect.ValueOf(b))
			dst.Set(out)
			return nil
		}
	}
	items, ok := sequenceItems(v)
	if !ok {
		return cannotAssign(v, dst)
	}
	out := reflect.MakeSlice(dst.Type(), len(items), len(items))
	for i, item := range items {
		if err := assignValue(out.Index(i), item); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	dst.Set(out)
	return nil
}

func assignArray(dst reflect.Value, v any) error {
	if dst.Type().Elem().Kind() == reflect.Uint8 {
		if b, ok := blobBytes(v); ok {
			if len(b) != dst.Len() {
				return fmt.Errorf("packify: %d bytes do not fit %s", len(b), dst.Type())
			}
			reflect.Copy(dst, reflect.ValueOf(b))
			return nil
		}
	}
	items, ok := sequenceItems(v)
	if !ok {
		return cannotAssign(v, dst)
	}
	if len(items) != dst.Len() {
		return fmt.Errorf("packify: %d elements do not fit %s", len(items), dst.Type())
	}
	for i, item := range items {
		if err := assignValue(dst.Index(i), item); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}
	return nil
}

func assignMap(dst reflect.Value, v any) error {
	typ := dst.Type()
	switch x := v.(type) {
	case *Set:
		if !isSetElem(typ.Elem()) {
			return cannotAssign(v, dst)
		}
		out := reflect.MakeMapWithSize(typ, x.Len())
		for _, item := range x.Items() {
			k := reflect.New(typ.Key()).Elem()
			if err := assignValue(k, item); err != nil {
				return err
			}
			out.SetMapIndex(k, reflect.New(typ.Elem()).Elem())
		}
		dst.Set(out)
		return nil
	case *Map:
		out := reflect.MakeMapWithSize(typ, x.Len())
		var err error
		x.Range(func(key, val any) bool {
			k := reflect.New(typ.Key()).Elem()
			if err = assignValue(k, key); err != nil {
				return false
			}
			if !k.Comparable() {
				err = fmt.Errorf("packify: key %T is not comparable", key)
				return false
			}
			e := reflect.New(typ.Elem()).Elem()
			if err = assignValue(e, val); err != nil {
				err = fmt.Errorf("key %v: %w", key, err)
				return false
			}
			out.SetMapIndex(k, e)
			return true
		})
		if err != nil {
			return err
		}
		dst.Set(out)
		return nil
	default:
		return cannotAssign(v, dst)
	}
}
