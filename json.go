package packify

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/minio/simdjson-go"
)

const b64Prefix = "b64:"

// FromJSON parses JSON and returns its packed encoding. Objects become
// insertion-ordered maps, arrays become lists, integral numbers become
// integers and other numbers floats. Strings prefixed with "b64:" holding
// valid base64 become bytes.
func FromJSON(data []byte) ([]byte, error) {
	v, err := ValueFromJSON(data)
	if err != nil {
		return nil, err
	}
	return Pack(v)
}

// ValueFromJSON parses JSON into the values Unpack would return for the
// packed form.
func ValueFromJSON(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("json input is empty")
	}
	if (trimmed[0] != '{' && trimmed[0] != '[') || !simdjson.SupportedCPU() {
		return valueFromJSONDecoder(trimmed)
	}
	parsed, err := simdjson.Parse(trimmed, nil)
	if err != nil {
		return nil, err
	}
	it := parsed.Iter()
	if it.Advance() != simdjson.TypeRoot {
		return nil, fmt.Errorf("json root not found")
	}
	typ, root, err := it.Root(nil)
	if err != nil {
		return nil, err
	}
	v, err := valueFromJSONIter(typ, root)
	if errors.Is(err, errIntegerOverflow) {
		return valueFromJSONDecoder(trimmed)
	}
	return v, err
}

// errIntegerOverflow reports an integer literal simdjson could only hold as
// a float. The document is then re-read with the exact decoder.
var errIntegerOverflow = errors.New("json integer overflows 64 bits")

func valueFromJSONIter(typ simdjson.Type, it *simdjson.Iter) (any, error) {
	switch typ {
	case simdjson.TypeNull:
		return nil, nil
	case simdjson.TypeBool:
		return it.Bool()
	case simdjson.TypeInt:
		return it.Int()
	case simdjson.TypeUint:
		v, err := it.Uint()
		if err != nil {
			return nil, err
		}
		if v > math.MaxInt64 {
			return new(big.Int).SetUint64(v), nil
		}
		return int64(v), nil
	case simdjson.TypeFloat:
		f, flags, err := it.FloatFlags()
		if err != nil {
			return nil, err
		}
		if flags.Contains(simdjson.FloatOverflowedInteger) {
			return nil, errIntegerOverflow
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("json number out of range")
		}
		return f, nil
	case simdjson.TypeString:
		b, err := it.StringBytes()
		if err != nil {
			return nil, err
		}
		return jsonString(string(b)), nil
	case simdjson.TypeObject:
		obj, err := it.Object(nil)
		if err != nil {
			return nil, err
		}
		m := NewMap()
		var parseErr error
		err = obj.ForEach(func(key []byte, elem simdjson.Iter) {
			if parseErr != nil {
				return
			}
			val, err := valueFromJSONIter(elem.Type(), &elem)
			if err != nil {
				parseErr = err
				return
			}
			parseErr = m.Set(string(key), val)
		}, nil)
		if err != nil {
			return nil, err
		}
		if parseErr != nil {
			return nil, parseErr
		}
		return m, nil
	case simdjson.TypeArray:
		arr, err := it.Array(nil)
		if err != nil {
			return nil, err
		}
		items := []any{}
		iter := arr.Iter()
		for {
			t := iter.Advance()
			if t == simdjson.TypeNone {
				break
			}
			elem := iter
			val, err := valueFromJSONIter(t, &elem)
			if err != nil {
				return nil, err
			}
			items = append(items, val)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unsupported json type: %v", typ)
	}
}

// valueFromJSONDecoder walks the token stream of encoding/json. It handles
// scalar documents and CPUs without simdjson support, and keeps integers
// of any size exact.
func valueFromJSONDecoder(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeJSONToken(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("invalid character after top-level value")
	}
	return v, nil
}

func decodeJSONToken(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case json.Number:
		return jsonNumber(t)
	case string:
		return jsonString(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []any{}
			for dec.More() {
				v, err := decodeJSONToken(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return items, nil
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("json object key is %T", keyTok)
				}
				v, err := decodeJSONToken(dec)
				if err != nil {
					return nil, err
				}
				if err := m.Set(key, v); err != nil {
					return nil, err
				}
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return nil, fmt.Errorf("unexpected json token %v", tok)
}

func jsonNumber(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		if x, ok := new(big.Int).SetString(s, 10); ok {
			return x, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid json number: %s", s)
	}
	return f, nil
}

func jsonString(s string) any {
	if strings.HasPrefix(s, b64Prefix) {
		if decoded, err := base64.StdEncoding.DecodeString(s[len(b64Prefix):]); err == nil {
			return decoded
		}
	}
	return s
}

// ToJSON renders a packed value as JSON. Extension values are not resolved;
// they are written as {"$type": id, "$data": "b64:..."}.
//
// Maps whose keys are all text become objects; other maps become arrays of
// [key, value] pairs. Sets, tuples and lists become arrays, byte blobs
// become "b64:" strings, integers and finite decimals exact number literals.
func ToJSON(data []byte) ([]byte, error) {
	var sb strings.Builder
	if err := WriteJSON(&sb, data); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// WriteJSON appends the JSON rendering of data to sb.
func WriteJSON(sb *strings.Builder, data []byte) error {
	v, err := DecOptions{RawExtensions: true}.Unpack(data, nil)
	if err != nil {
		return err
	}
	return writeJSONValue(sb, v)
}

func writeJSONValue(sb *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
	case bool:
		if x {
			sb.WriteString("true")
		} else {
			sb.WriteString("false")
		}
	case int64:
		sb.WriteString(strconv.FormatInt(x, 10))
	case *big.Int:
		sb.WriteString(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("float %v has no json representation", x)
		}
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEn") {
			s += ".0"
		}
		sb.WriteString(s)
	case *apd.Decimal:
		if x.Form == apd.Finite {
			sb.WriteString(x.String())
		} else {
			writeJSONStringBytes(sb, []byte(x.String()))
		}
	case string:
		writeJSONStringBytes(sb, []byte(x))
	case []byte:
		writeJSONBlob(sb, x)
	case ByteArray:
		writeJSONBlob(sb, x)
	case Tuple:
		return writeJSONArray(sb, x)
	case []any:
		return writeJSONArray(sb, x)
	case *Set:
		return writeJSONArray(sb, x.Items())
	case *Map:
		return writeJSONMap(sb, x)
	case *RawExtension:
		sb.WriteString(`{"$type":`)
		writeJSONStringBytes(sb, []byte(x.Name))
		sb.WriteString(`,"$data":`)
		writeJSONBlob(sb, x.Data)
		sb.WriteByte('}')
	default:
		return fmt.Errorf("unexpected decoded value %T", v)
	}
	return nil
}

func writeJSONBlob(sb *strings.Builder, b []byte) {
	sb.WriteByte('"')
	sb.WriteString(b64Prefix)
	sb.WriteString(base64.StdEncoding.EncodeToString(b))
	sb.WriteByte('"')
}

func writeJSONArray(sb *strings.Builder, items []any) error {
	sb.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			sb.WriteByte(',')
		}
		if err := writeJSONValue(sb, item); err != nil {
			return err
		}
	}
	sb.WriteByte(']')
	return nil
}

func writeJSONMap(sb *strings.Builder, m *Map) error {
	textKeys := true
	m.Range(func(k, _ any) bool {
		_, textKeys = k.(string)
		return textKeys
	})
	if !textKeys {
		sb.WriteByte('[')
		for i, e := range m.entries {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('[')
			if err := writeJSONValue(sb, e.Key); err != nil {
				return err
			}
			sb.WriteByte(',')
			if err := writeJSONValue(sb, e.Value); err != nil {
				return err
			}
			sb.WriteByte(']')
		}
		sb.WriteByte(']')
		return nil
	}
	sb.WriteByte('{')
	for i, e := range m.entries {
		if i > 0 {
			sb.WriteByte(',')
		}
		writeJSONStringBytes(sb, []byte(e.Key.(string)))
		sb.WriteByte(':')
		if err := writeJSONValue(sb, e.Value); err != nil {
			return err
		}
	}
	sb.WriteByte('}')
	return nil
}

func writeJSONStringBytes(sb *strings.Builder, b []byte) {
	sb.WriteByte('"')
	for _, c := range b {
		switch c {
		case '"', '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case '\b':
			sb.WriteString(`\b`)
		case '\f':
			sb.WriteString(`\f`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 {
				sb.WriteString(`\u00`)
				sb.WriteByte(hexDigit(c >> 4))
				sb.WriteByte(hexDigit(c & 0xF))
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
}

func hexDigit(n byte) byte {
	if n < 10 {
		return '0' + n
	}
	return 'A' + (n - 10)
}
