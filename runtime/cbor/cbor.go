// Package cbor converts between CBOR (RFC 8949) and packed data.
//
// Map order is preserved in both directions. Bignums map to integers, tag 4
// decimal fractions to decimals, tag 258 arrays to sets and tag 27 objects
// of the form [identifier, payload] to extensions. CBOR has no mutable
// sub-kinds, so tuples and lists both become arrays and both byte kinds
// become byte strings.
package cbor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
	fxcbor "github.com/fxamacker/cbor/v2"
	"github.com/starfederation/packify-go"
)

const (
	tagBigPos          = 2
	tagBigNeg          = 3
	tagDecimalFraction = 4
	tagObject          = 27
	tagSet             = 258
)

const (
	majorArray = 4
	majorMap   = 5
	majorTag   = 6
	breakByte  = 0xff
)

var (
	ErrTruncated  = errors.New("cbor: unexpected end of data")
	ErrIndefinite = errors.New("cbor: indefinite-length item not allowed here")
)

var decMode, encMode = mustModes()

func mustModes() (fxcbor.DecMode, fxcbor.EncMode) {
	dm, err := fxcbor.DecOptions{
		IntDec:    fxcbor.IntDecConvertSignedOrBigInt,
		BigIntDec: fxcbor.BigIntDecodePointer,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	em, err := fxcbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return dm, em
}

// FromCBOR decodes one CBOR data item and packs it.
func FromCBOR(data []byte) ([]byte, error) {
	v, rest, err := fromItem(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("cbor: %d trailing bytes", len(rest))
	}
	return packify.Pack(v)
}

// ToCBOR renders packed data as CBOR. Scalars use core deterministic
// encoding; maps keep their insertion order. Extension values are not
// resolved.
func ToCBOR(data []byte) ([]byte, error) {
	v, err := packify.DecOptions{RawExtensions: true}.Unpack(data, nil)
	if err != nil {
		return nil, err
	}
	return appendValue(nil, v)
}

// head parses the initial byte and argument of a data item.
func head(data []byte) (major byte, arg uint64, indefinite bool, n int, err error) {
	if len(data) == 0 {
		return 0, 0, false, 0, ErrTruncated
	}
	major = data[0] >> 5
	ai := data[0] & 0x1f
	switch {
	case ai < 24:
		return major, uint64(ai), false, 1, nil
	case ai == 31:
		return major, 0, true, 1, nil
	case ai > 27:
		return 0, 0, false, 0, fmt.Errorf("cbor: reserved additional information %d", ai)
	}
	size := 1 << (ai - 24)
	if len(data) < 1+size {
		return 0, 0, false, 0, ErrTruncated
	}
	var tmp [8]byte
	copy(tmp[8-size:], data[1:1+size])
	return major, binary.BigEndian.Uint64(tmp[:]), false, 1 + size, nil
}

func fromItem(data []byte) (any, []byte, error) {
	major, arg, indefinite, n, err := head(data)
	if err != nil {
		return nil, nil, err
	}
	if indefinite && (major < 2 || major >= majorTag) {
		return nil, nil, ErrIndefinite
	}
	switch major {
	case majorArray:
		return fromArray(data[n:], arg, indefinite)
	case majorMap:
		return fromMap(data[n:], arg, indefinite)
	case majorTag:
		return fromTag(data, arg, data[n:])
	}
	var v any
	rest, err := decMode.UnmarshalFirst(data, &v)
	if err != nil {
		return nil, nil, err
	}
	switch x := v.(type) {
	case nil, bool, int64, *big.Int, float64, string, []byte:
		return x, rest, nil
	case fxcbor.SimpleValue:
		return nil, nil, fmt.Errorf("cbor: simple value %d has no packed equivalent", x)
	default:
		return nil, nil, fmt.Errorf("cbor: unexpected item %T", v)
	}
}

// items calls fn for count items, or until the break byte when indefinite.
func items(data []byte, count uint64, indefinite bool, fn func(v any) error) ([]byte, error) {
	for i := uint64(0); indefinite || i < count; i++ {
		if indefinite {
			if len(data) == 0 {
				return nil, ErrTruncated
			}
			if data[0] == breakByte {
				return data[1:], nil
			}
		}
		v, rest, err := fromItem(data)
		if err != nil {
			return nil, err
		}
		if err := fn(v); err != nil {
			return nil, err
		}
		data = rest
	}
	return data, nil
}

func fromArray(data []byte, count uint64, indefinite bool) ([]any, []byte, error) {
	if !indefinite && count > uint64(len(data)) {
		return nil, nil, ErrTruncated
	}
	out := []any{}
	rest, err := items(data, count, indefinite, func(v any) error {
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, rest, nil
}

func fromMap(data []byte, count uint64, indefinite bool) (*packify.Map, []byte, error) {
	if !indefinite && count > uint64(len(data))/2 {
		return nil, nil, ErrTruncated
	}
	m := packify.NewMap()
	var key any
	haveKey := false
	pairs := count * 2
	if indefinite {
		pairs = 0
	}
	rest, err := items(data, pairs, indefinite, func(v any) error {
		if !haveKey {
			key, haveKey = v, true
			return nil
		}
		haveKey = false
		if _, dup := m.Get(key); dup {
			return fmt.Errorf("cbor: duplicate map key %v", key)
		}
		return m.Set(key, v)
	})
	if err != nil {
		return nil, nil, err
	}
	if haveKey {
		return nil, nil, fmt.Errorf("cbor: map has a key without a value")
	}
	return m, rest, nil
}

func fromTag(item []byte, number uint64, content []byte) (any, []byte, error) {
	switch number {
	case tagBigPos, tagBigNeg:
		var v any
		rest, err := decMode.UnmarshalFirst(item, &v)
		if err != nil {
			return nil, nil, err
		}
		return v, rest, nil
	case tagDecimalFraction:
		v, rest, err := fromItem(content)
		if err != nil {
			return nil, nil, err
		}
		d, err := decimalFraction(v)
		if err != nil {
			return nil, nil, err
		}
		return d, rest, nil
	case tagSet:
		v, rest, err := fromItem(content)
		if err != nil {
			return nil, nil, err
		}
		elems, ok := v.([]any)
		if !ok {
			return nil, nil, fmt.Errorf("cbor: tag 258 content is %T, want array", v)
		}
		s, err := packify.NewSet(elems...)
		if err != nil {
			return nil, nil, err
		}
		return s, rest, nil
	case tagObject:
		v, rest, err := fromItem(content)
		if err != nil {
			return nil, nil, err
		}
		arr, ok := v.([]any)
		if !ok || len(arr) != 2 {
			return nil, nil, fmt.Errorf("cbor: tag 27 content must be [identifier, payload]")
		}
		name, ok1 := arr[0].(string)
		payload, ok2 := arr[1].([]byte)
		if !ok1 || !ok2 || name == "" {
			return nil, nil, fmt.Errorf("cbor: tag 27 content must be [text, bytes]")
		}
		return &packify.RawExtension{Name: name, Data: payload}, rest, nil
	default:
		return nil, nil, fmt.Errorf("cbor: unsupported tag %d", number)
	}
}

func decimalFraction(v any) (*apd.Decimal, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return nil, fmt.Errorf("cbor: decimal fraction must be [exponent, mantissa]")
	}
	exp, ok := arr[0].(int64)
	if !ok || exp < -1<<31 || exp > 1<<31-1 {
		return nil, fmt.Errorf("cbor: decimal fraction exponent %v out of range", arr[0])
	}
	var coeff apd.BigInt
	switch m := arr[1].(type) {
	case int64:
		coeff.SetInt64(m)
	case *big.Int:
		coeff.SetMathBigInt(m)
	default:
		return nil, fmt.Errorf("cbor: decimal fraction mantissa is %T", arr[1])
	}
	return apd.NewWithBigInt(&coeff, int32(exp)), nil
}

func appendHead(dst []byte, major byte, n uint64) []byte {
	m := major << 5
	switch {
	case n < 24:
		return append(dst, m|byte(n))
	case n <= 0xff:
		return append(dst, m|24, byte(n))
	case n <= 0xffff:
		return binary.BigEndian.AppendUint16(append(dst, m|25), uint16(n))
	case n <= 0xffffffff:
		return binary.BigEndian.AppendUint32(append(dst, m|26), uint32(n))
	default:
		return binary.BigEndian.AppendUint64(append(dst, m|27), n)
	}
}

func appendValue(dst []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case packify.Tuple:
		return appendArray(dst, x)
	case []any:
		return appendArray(dst, x)
	case *packify.Set:
		dst = appendHead(dst, majorTag, tagSet)
		return appendArray(dst, x.Items())
	case *packify.Map:
		dst = appendHead(dst, majorMap, uint64(x.Len()))
		for _, e := range x.Entries() {
			var err error
			if dst, err = appendValue(dst, e.Key); err != nil {
				return nil, err
			}
			if dst, err = appendValue(dst, e.Value); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case *apd.Decimal:
		if x.Form != apd.Finite {
			return nil, fmt.Errorf("cbor: decimal %s has no cbor representation", x)
		}
		mantissa := x.Coeff.MathBigInt()
		if x.Negative {
			mantissa.Neg(mantissa)
		}
		return appendScalar(dst, fxcbor.Tag{Number: tagDecimalFraction, Content: []any{int64(x.Exponent), mantissa}})
	case packify.ByteArray:
		return appendScalar(dst, []byte(x))
	case *packify.RawExtension:
		return appendScalar(dst, fxcbor.Tag{Number: tagObject, Content: []any{x.Name, x.Data}})
	case nil, bool, int64, *big.Int, float64, string, []byte:
		return appendScalar(dst, x)
	default:
		return nil, fmt.Errorf("cbor: unexpected decoded value %T", v)
	}
}

func appendArray(dst []byte, elems []any) ([]byte, error) {
	dst = appendHead(dst, majorArray, uint64(len(elems)))
	for _, e := range elems {
		var err error
		if dst, err = appendValue(dst, e); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func appendScalar(dst []byte, v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(dst, b...), nil
}
