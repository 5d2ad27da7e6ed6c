// Package json moves Go values in and out of packed form using encoding/json
// semantics: struct tags, omitempty and custom marshalers all apply.
package json

import (
	stdjson "encoding/json"
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
	"github.com/starfederation/packify-go"
)

// Marshal encodes a Go value into packed form using JSON semantics.
func Marshal(v any) ([]byte, error) {
	data, err := stdjson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return packify.FromJSON(data)
}

// Unmarshal decodes packed data into a Go value using JSON semantics.
// Extension values are not resolved and reach v as {"$type", "$data"}
// objects.
func Unmarshal(data []byte, v any) error {
	if v == nil {
		return fmt.Errorf("nil target")
	}
	decoded, err := packify.DecOptions{RawExtensions: true}.Unpack(data, nil)
	if err != nil {
		return err
	}
	return UnmarshalValue(decoded, v)
}

// UnmarshalValue stores an already decoded value into out using JSON semantics.
func UnmarshalValue(decoded any, out any) error {
	if out == nil {
		return fmt.Errorf("nil target")
	}
	value, err := valueToAny(decoded)
	if err != nil {
		return err
	}
	data, err := stdjson.Marshal(value)
	if err != nil {
		return err
	}
	return stdjson.Unmarshal(data, out)
}

func valueToAny(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int64, float64, string, []byte:
		return x, nil
	case packify.ByteArray:
		return []byte(x), nil
	case *big.Int:
		return stdjson.Number(x.String()), nil
	case *apd.Decimal:
		if x.Form != apd.Finite {
			return x.String(), nil
		}
		return stdjson.Number(x.String()), nil
	case packify.Tuple:
		return sliceToAny(x)
	case []any:
		return sliceToAny(x)
	case *packify.Set:
		return sliceToAny(x.Items())
	case *packify.Map:
		return mapToAny(x)
	case *packify.RawExtension:
		return map[string]any{"$type": x.Name, "$data": x.Data}, nil
	default:
		return nil, fmt.Errorf("unknown value type %T", v)
	}
}

func mapToAny(m *packify.Map) (map[string]any, error) {
	out := make(map[string]any, m.Len())
	var err error
	m.Range(func(k, v any) bool {
		key, ok := k.(string)
		if !ok {
			err = fmt.Errorf("map key %T is not text", k)
			return false
		}
		var val any
		if val, err = valueToAny(v); err != nil {
			return false
		}
		out[key] = val
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func sliceToAny(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		conv, err := valueToAny(item)
		if err != nil {
			return nil, err
		}
		out[i] = conv
	}
	return out, nil
}
