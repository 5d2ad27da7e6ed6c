package packify

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
	"github.com/delaneyj/toolbelt/bytebufferpool"
)

// DefaultMaxDepth bounds container nesting for both Pack and Unpack.
const DefaultMaxDepth = 512

// Pack encodes v into a new byte slice.
func Pack(v any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	e := encoder{buf: buf}
	if err := e.encode(v); err != nil {
		return nil, err
	}
	out := append([]byte{}, buf.Bytes()...)
	return out, nil
}

// AppendPack appends the encoding of v to dst and returns the extended slice.
// On error dst is returned unchanged.
func AppendPack(dst []byte, v any) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	e := encoder{buf: buf}
	if err := e.encode(v); err != nil {
		return dst, err
	}
	return append(dst, buf.Bytes()...), nil
}

// Marshal is Pack under the name used by the encoding/* packages.
func Marshal(v any) ([]byte, error) {
	return Pack(v)
}

// encodeKey returns the canonical encoding of v as a string so it can be
// used for set membership and mapping key lookup.
func encodeKey(v any, depth int) (string, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	e := encoder{buf: buf, depth: depth}
	if err := e.encode(v); err != nil {
		return "", err
	}
	return string(buf.Bytes()), nil
}

type encoder struct {
	buf   *bytebufferpool.ByteBuffer
	depth int
}

func (e *encoder) encode(v any) error {
	if v == nil {
		e.writeTag(TagNull)
		return nil
	}
	if p, ok := v.(Packable); ok {
		if isNilPointer(v) {
			e.writeTag(TagNull)
			return nil
		}
		return e.encodeExtension(p)
	}

	// bool is matched before every integer kind.
	switch x := v.(type) {
	case bool:
		e.writeBool(x)
	case int:
		e.writeInt(int64(x))
	case int8:
		e.writeInt(int64(x))
	case int16:
		e.writeInt(int64(x))
	case int32:
		e.writeInt(int64(x))
	case int64:
		e.writeInt(x)
	case uint:
		e.writeUint(false, uint64(x))
	case uint8:
		e.writeUint(false, uint64(x))
	case uint16:
		e.writeUint(false, uint64(x))
	case uint32:
		e.writeUint(false, uint64(x))
	case uint64:
		e.writeUint(false, x)
	case *big.Int:
		if x == nil {
			e.writeTag(TagNull)
			return nil
		}
		e.writeBigInt(x)
	case big.Int:
		e.writeBigInt(&x)
	case float64:
		e.writeFloat(x)
	case float32:
		e.writeFloat(float64(x))
	case *apd.Decimal:
		if x == nil {
			e.writeTag(TagNull)
			return nil
		}
		e.writeBlob(TagDecimal, []byte(x.String()))
	case apd.Decimal:
		e.writeBlob(TagDecimal, []byte(x.String()))
	case string:
		return e.writeText(v, x)
	case ByteArray:
		if x == nil {
			e.writeTag(TagNull)
			return nil
		}
		e.writeBlob(TagByteArray, x)
	case []byte:
		if x == nil {
			e.writeTag(TagNull)
			return nil
		}
		e.writeBlob(TagBytes, x)
	case Tuple:
		return e.encodeSequence(TagTuple, len(x), func(i int) any { return x[i] })
	case []any:
		if x == nil {
			e.writeTag(TagNull)
			return nil
		}
		return e.encodeSequence(TagList, len(x), func(i int) any { return x[i] })
	case *Set:
		if x == nil {
			e.writeTag(TagNull)
			return nil
		}
		return e.encodeSet(x)
	case Set:
		return e.encodeSet(&x)
	case *Map:
		if x == nil {
			e.writeTag(TagNull)
			return nil
		}
		return e.encodeMap(x)
	case Map:
		return e.encodeMap(&x)
	default:
		return e.encodeReflect(v, reflect.ValueOf(v))
	}
	return nil
}

func (e *encoder) encodeReflect(orig any, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Bool:
		e.writeBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.writeInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.writeUint(false, rv.Uint())
	case reflect.Float32, reflect.Float64:
		e.writeFloat(rv.Float())
	case reflect.String:
		return e.writeText(orig, rv.String())
	case reflect.Slice:
		if rv.IsNil() {
			e.writeTag(TagNull)
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			e.writeBlob(TagBytes, rv.Bytes())
			return nil
		}
		return e.encodeSequence(TagList, rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			e.writeBlob(TagBytes, b)
			return nil
		}
		return e.encodeSequence(TagTuple, rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.IsNil() {
			e.writeTag(TagNull)
			return nil
		}
		if isSetElem(rv.Type().Elem()) {
			return e.encodeGoSet(rv)
		}
		return e.encodeGoMap(rv)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			e.writeTag(TagNull)
			return nil
		}
		return e.encode(rv.Elem().Interface())
	default:
		return unsupported(orig, "")
	}
	return nil
}

func (e *encoder) enter(v any) error {
	e.depth++
	if e.depth > DefaultMaxDepth {
		return unsupported(v, fmt.Sprintf("nesting exceeds %d levels", DefaultMaxDepth))
	}
	return nil
}

func (e *encoder) leave() {
	e.depth--
}

func (e *encoder) encodeSequence(tag Tag, n int, at func(i int) any) error {
	if err := e.enter(tag.String()); err != nil {
		return err
	}
	defer e.leave()
	e.writeTag(tag)
	e.writeUvarint(uint64(n))
	for i := 0; i < n; i++ {
		if err := e.encode(at(i)); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeSet(s *Set) error {
	if err := e.enter(s); err != nil {
		return err
	}
	defer e.leave()
	keys := getStringSlice(len(s.items))
	defer putStringSlice(keys)
	keys = keys[:0]
	for k := range s.items {
		keys = append(keys, k)
	}
	e.writeCanonical(TagSet, keys)
	return nil
}

func (e *encoder) encodeMap(m *Map) error {
	if err := e.enter(m); err != nil {
		return err
	}
	defer e.leave()
	e.writeTag(TagMap)
	e.writeUvarint(uint64(len(m.entries)))
	for i, entry := range m.entries {
		e.buf.WriteString(m.keys[i])
		if err := e.encode(entry.Value); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeGoSet(rv reflect.Value) error {
	orig := rv.Interface()
	if err := e.enter(orig); err != nil {
		return err
	}
	defer e.leave()
	keys := getStringSlice(rv.Len())
	defer putStringSlice(keys)
	keys = keys[:0]
	iter := rv.MapRange()
	for iter.Next() {
		k, err := encodeKey(iter.Key().Interface(), e.depth)
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	e.writeCanonical(TagSet, keys)
	return nil
}

// encodeGoMap writes a Go map. Go maps carry no insertion order, so entries
// are ordered by their encoded keys.
func (e *encoder) encodeGoMap(rv reflect.Value) error {
	orig := rv.Interface()
	if err := e.enter(orig); err != nil {
		return err
	}
	defer e.leave()
	pairs := getPairSlice(rv.Len())
	defer putPairSlice(pairs)
	pairs = pairs[:0]
	iter := rv.MapRange()
	for iter.Next() {
		k, err := encodeKey(iter.Key().Interface(), e.depth)
		if err != nil {
			return err
		}
		pairs = append(pairs, keyedValue{key: k, value: iter.Value().Interface()})
	}
	sortPairs(pairs)
	for i := 1; i < len(pairs); i++ {
		if pairs[i-1].key == pairs[i].key {
			return unsupported(orig, "two keys share the same encoding")
		}
	}
	e.writeTag(TagMap)
	e.writeUvarint(uint64(len(pairs)))
	for _, p := range pairs {
		e.buf.WriteString(p.key)
		if err := e.encode(p.value); err != nil {
			return err
		}
	}
	return nil
}

func (e *encoder) encodeExtension(p Packable) error {
	name := TypeName(p)
	if name == "" {
		return unsupported(p, "extension type has no name")
	}
	payload, err := p.Pack()
	if err != nil {
		return &SerializationError{Type: fmt.Sprintf("%T", p), Reason: "extension pack failed", Err: err}
	}
	e.writeTag(TagExt)
	e.writeLength(len(name))
	e.buf.WriteString(name)
	e.writeLength(len(payload))
	e.buf.Write(payload)
	return nil
}

// writeCanonical sorts the element encodings, drops duplicates and writes
// them as a counted container.
func (e *encoder) writeCanonical(tag Tag, keys []string) {
	keys = canonicalize(keys)
	e.writeTag(tag)
	e.writeUvarint(uint64(len(keys)))
	for _, k := range keys {
		e.buf.WriteString(k)
	}
}

func (e *encoder) writeTag(t Tag) {
	e.buf.WriteByte(byte(t))
}

func (e *encoder) writeBool(b bool) {
	e.writeTag(TagBool)
	if b {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) writeInt(v int64) {
	if v < 0 {
		e.writeUint(true, uint64(-v))
		return
	}
	e.writeUint(false, uint64(v))
}

func (e *encoder) writeUint(neg bool, mag uint64) {
	e.writeTag(TagInt)
	if neg {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], mag)
	i := 0
	for i < len(tmp) && tmp[i] == 0 {
		i++
	}
	e.writeLength(len(tmp) - i)
	e.buf.Write(tmp[i:])
}

func (e *encoder) writeBigInt(x *big.Int) {
	if x.IsInt64() {
		e.writeInt(x.Int64())
		return
	}
	e.writeTag(TagInt)
	if x.Sign() < 0 {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
	mag := x.Bytes()
	e.writeLength(len(mag))
	e.buf.Write(mag)
}

func (e *encoder) writeFloat(f float64) {
	e.writeTag(TagFloat)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], math.Float64bits(f))
	e.buf.Write(tmp[:])
}

func (e *encoder) writeText(orig any, s string) error {
	if !utf8.ValidString(s) {
		return unsupported(orig, "text is not valid UTF-8")
	}
	e.writeTag(TagText)
	e.writeLength(len(s))
	e.buf.WriteString(s)
	return nil
}

func (e *encoder) writeBlob(tag Tag, b []byte) {
	e.writeTag(tag)
	e.writeLength(len(b))
	e.buf.Write(b)
}

func (e *encoder) writeLength(n int) {
	e.writeUvarint(uint64(n))
}

func (e *encoder) writeUvarint(x uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	e.buf.Write(tmp[:n])
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

func isSetElem(t reflect.Type) bool {
	return t.Kind() == reflect.Struct && t.NumField() == 0
}
