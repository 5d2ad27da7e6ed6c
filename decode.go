package packify

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/cockroachdb/apd/v3"
)

// DecOptions configures decoding. The zero value matches Unpack.
//
// Options and nesting depth stop at extension boundaries: an Unpacker gets
// only the payload and the registry, and decodes the payload with whatever
// call it makes itself. MaxDepth therefore bounds each payload separately.
type DecOptions struct {
	// MaxDepth bounds container nesting. Zero means DefaultMaxDepth.
	MaxDepth int

	// RawExtensions makes extension values whose identifier is missing from
	// the registry decode as *RawExtension instead of failing with a
	// UsageError.
	RawExtensions bool
}

// Unpack decodes a single value that must span all of data. Extension values
// are resolved through reg, which is forwarded unchanged to every nested
// decode. A nil reg is an empty registry.
func Unpack(data []byte, reg Registry) (any, error) {
	return DecOptions{}.Unpack(data, reg)
}

// DecodeValue decodes the value at the start of data and returns it with the
// number of bytes consumed. Bytes after the value are left untouched.
func DecodeValue(data []byte, reg Registry) (any, int, error) {
	return DecOptions{}.DecodeValue(data, reg)
}

// Unpack decodes a single value that must span all of data.
func (o DecOptions) Unpack(data []byte, reg Registry) (any, error) {
	v, n, err := o.DecodeValue(data, reg)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, &MalformedDataError{Offset: n, Reason: fmt.Sprintf("%d trailing bytes after value", len(data)-n)}
	}
	return v, nil
}

// DecodeValue decodes the value at the start of data and returns it with the
// number of bytes consumed.
func (o DecOptions) DecodeValue(data []byte, reg Registry) (any, int, error) {
	r := reader{data: data, reg: reg, opts: o, maxDepth: o.MaxDepth}
	if r.maxDepth <= 0 {
		r.maxDepth = DefaultMaxDepth
	}
	v, err := r.value()
	if err != nil {
		return nil, 0, err
	}
	return v, r.off, nil
}

type reader struct {
	data     []byte
	off      int
	reg      Registry
	opts     DecOptions
	depth    int
	maxDepth int
}

func (r *reader) failAt(off int, format string, args ...any) error {
	return &MalformedDataError{Offset: off, Reason: fmt.Sprintf(format, args...)}
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) readByte() (byte, error) {
	if r.off >= len(r.data) {
		return 0, r.failAt(r.off, "unexpected end of data")
	}
	b := r.data[r.off]
	r.off++
	return b, nil
}

func (r *reader) readUvarint() (uint64, error) {
	x, n := binary.Uvarint(r.data[r.off:])
	switch {
	case n == 0:
		return 0, r.failAt(r.off, "unexpected end of data in length")
	case n < 0:
		return 0, r.failAt(r.off, "length overflows 64 bits")
	case n > 1 && r.data[r.off+n-1] == 0:
		return 0, r.failAt(r.off, "non-minimal length encoding")
	}
	r.off += n
	return x, nil
}

func (r *reader) readN(n uint64) ([]byte, error) {
	if n > uint64(r.remaining()) {
		return nil, r.failAt(r.off, "length %d exceeds remaining %d bytes", n, r.remaining())
	}
	b := r.data[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}

func (r *reader) readBlob() ([]byte, error) {
	n, err := r.readUvarint()
	if err != nil {
		return nil, err
	}
	return r.readN(n)
}

// readCount reads an element count. Every element takes at least minSize
// bytes, which bounds the count by the input left.
func (r *reader) readCount(minSize int) (int, error) {
	start := r.off
	n, err := r.readUvarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.remaining()/minSize) {
		return 0, r.failAt(start, "count %d exceeds remaining %d bytes", n, r.remaining())
	}
	return int(n), nil
}

func (r *reader) enter(start int) error {
	r.depth++
	if r.depth > r.maxDepth {
		return r.failAt(start, "nesting exceeds %d levels", r.maxDepth)
	}
	return nil
}

func (r *reader) leave() {
	r.depth--
}

func (r *reader) value() (any, error) {
	start := r.off
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch tag := Tag(b); tag {
	case TagNull:
		return nil, nil
	case TagBool:
		v, err := r.readByte()
		if err != nil {
			return nil, err
		}
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, r.failAt(r.off-1, "invalid bool byte 0x%02x", v)
		}
	case TagInt:
		return r.integer()
	case TagFloat:
		raw, err := r.readN(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(raw)), nil
	case TagDecimal:
		raw, err := r.readBlob()
		if err != nil {
			return nil, err
		}
		d, _, err := apd.NewFromString(string(raw))
		if err != nil {
			return nil, r.failAt(start, "invalid decimal %q", raw)
		}
		return d, nil
	case TagText:
		raw, err := r.readBlob()
		if err != nil {
			return nil, err
		}
		if !utf8.Valid(raw) {
			return nil, r.failAt(start, "text is not valid UTF-8")
		}
		return string(raw), nil
	case TagBytes:
		raw, err := r.readBlob()
		if err != nil {
			return nil, err
		}
		return append([]byte{}, raw...), nil
	case TagByteArray:
		raw, err := r.readBlob()
		if err != nil {
			return nil, err
		}
		return ByteArray(append([]byte{}, raw...)), nil
	case TagTuple, TagList:
		items, err := r.sequence(start)
		if err != nil {
			return nil, err
		}
		if tag == TagTuple {
			return Tuple(items), nil
		}
		return items, nil
	case TagSet:
		return r.set(start)
	case TagMap:
		return r.mapping(start)
	case TagExt:
		return r.extension(start)
	default:
		return nil, r.failAt(start, "unknown tag %d", b)
	}
}

func (r *reader) integer() (any, error) {
	signOff := r.off
	sign, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if sign > 1 {
		return nil, r.failAt(signOff, "invalid integer sign byte 0x%02x", sign)
	}
	mag, err := r.readBlob()
	if err != nil {
		return nil, err
	}
	if len(mag) == 0 {
		if sign == 1 {
			return nil, r.failAt(signOff, "negative zero integer")
		}
		return int64(0), nil
	}
	if mag[0] == 0 {
		return nil, r.failAt(signOff, "non-minimal integer magnitude")
	}
	if len(mag) <= 8 {
		var tmp [8]byte
		copy(tmp[8-len(mag):], mag)
		u := binary.BigEndian.Uint64(tmp[:])
		if sign == 0 && u <= math.MaxInt64 {
			return int64(u), nil
		}
		if sign == 1 && u <= 1<<63 {
			return -int64(u), nil
		}
	}
	x := new(big.Int).SetBytes(mag)
	if sign == 1 {
		x.Neg(x)
	}
	return x, nil
}

func (r *reader) sequence(start int) ([]any, error) {
	n, err := r.readCount(1)
	if err != nil {
		return nil, err
	}
	if err := r.enter(start); err != nil {
		return nil, err
	}
	defer r.leave()
	items := make([]any, n)
	for i := range items {
		if items[i], err = r.value(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (r *reader) set(start int) (*Set, error) {
	n, err := r.readCount(1)
	if err != nil {
		return nil, err
	}
	if err := r.enter(start); err != nil {
		return nil, err
	}
	defer r.leave()
	s := &Set{items: make(map[string]any, n)}
	for i := 0; i < n; i++ {
		elemStart := r.off
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		key, err := r.canonicalKey(elemStart, v)
		if err != nil {
			return nil, err
		}
		if _, dup := s.items[key]; !dup {
			s.items[key] = v
		}
	}
	return s, nil
}

func (r *reader) mapping(start int) (*Map, error) {
	n, err := r.readCount(2)
	if err != nil {
		return nil, err
	}
	if err := r.enter(start); err != nil {
		return nil, err
	}
	defer r.leave()
	m := NewMap(n)
	for i := 0; i < n; i++ {
		keyStart := r.off
		k, err := r.value()
		if err != nil {
			return nil, err
		}
		key, err := r.canonicalKey(keyStart, k)
		if err != nil {
			return nil, err
		}
		if m.has(key) {
			return nil, r.failAt(keyStart, "duplicate mapping key")
		}
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		m.append(key, k, v)
	}
	return m, nil
}

// canonicalKey returns the identity of the element decoded from
// r.data[start:r.off]. Scalar encodings are already canonical once decoded;
// anything that can hold a set, a decimal or an extension is re-encoded.
func (r *reader) canonicalKey(start int, v any) (string, error) {
	switch Tag(r.data[start]) {
	case TagNull, TagBool, TagInt, TagFloat, TagText, TagBytes, TagByteArray:
		return string(r.data[start:r.off]), nil
	}
	key, err := encodeKey(v, r.depth)
	if err != nil {
		return "", r.failAt(start, "element has no canonical encoding: %v", err)
	}
	return key, nil
}

func (r *reader) extension(start int) (any, error) {
	rawName, err := r.readBlob()
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(rawName) {
		return nil, r.failAt(start, "extension identifier is not valid UTF-8")
	}
	payload, err := r.readBlob()
	if err != nil {
		return nil, err
	}
	name := string(rawName)
	data := append([]byte{}, payload...)
	u, ok := r.reg.Lookup(name)
	if !ok {
		if r.opts.RawExtensions {
			return &RawExtension{Name: name, Data: data}, nil
		}
		return nil, &UsageError{Name: name}
	}
	v, err := u.Unpack(data, r.reg)
	if err != nil {
		return nil, fmt.Errorf("packify: unpack extension %q: %w", name, err)
	}
	return v, nil
}
