package packify

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Dump writes an indented, one-value-per-line description of an encoded
// value to w. Each line starts with the offset of the value's tag byte.
// Extension payloads are shown as hex and not resolved.
func Dump(w io.Writer, data []byte) error {
	d := dumper{r: reader{data: data, maxDepth: DefaultMaxDepth}}
	if err := d.value(0, ""); err != nil {
		return err
	}
	if d.r.off != len(data) {
		return d.r.failAt(d.r.off, "%d trailing bytes after value", len(data)-d.r.off)
	}
	_, err := io.WriteString(w, d.sb.String())
	return err
}

type dumper struct {
	r  reader
	sb strings.Builder
}

func (d *dumper) line(off, indent int, label, format string, args ...any) {
	fmt.Fprintf(&d.sb, "%06x  %s%s", off, strings.Repeat("  ", indent), label)
	fmt.Fprintf(&d.sb, format, args...)
	d.sb.WriteByte('\n')
}

func (d *dumper) value(indent int, label string) error {
	start := d.r.off
	b, err := d.r.readByte()
	if err != nil {
		return err
	}
	tag := Tag(b)
	switch tag {
	case TagNull:
		d.line(start, indent, label, "null")
	case TagBool:
		d.r.off = start
		v, err := d.r.value()
		if err != nil {
			return err
		}
		d.line(start, indent, label, "bool %t", v)
	case TagInt:
		v, err := d.r.integer()
		if err != nil {
			return err
		}
		d.line(start, indent, label, "int %v", v)
	case TagFloat:
		raw, err := d.r.readN(8)
		if err != nil {
			return err
		}
		f := math.Float64frombits(binary.BigEndian.Uint64(raw))
		d.line(start, indent, label, "float %s", strconv.FormatFloat(f, 'g', -1, 64))
	case TagDecimal, TagText:
		d.r.off = start
		v, err := d.r.value()
		if err != nil {
			return err
		}
		d.line(start, indent, label, "%s %q", tag, fmt.Sprint(v))
	case TagBytes, TagByteArray:
		raw, err := d.r.readBlob()
		if err != nil {
			return err
		}
		d.line(start, indent, label, "%s[%d] %s", tag, len(raw), hex.EncodeToString(raw))
	case TagTuple, TagList, TagSet:
		n, err := d.r.readCount(1)
		if err != nil {
			return err
		}
		if err := d.r.enter(start); err != nil {
			return err
		}
		d.line(start, indent, label, "%s(%d)", tag, n)
		for i := 0; i < n; i++ {
			if err := d.value(indent+1, ""); err != nil {
				return err
			}
		}
		d.r.leave()
	case TagMap:
		n, err := d.r.readCount(2)
		if err != nil {
			return err
		}
		if err := d.r.enter(start); err != nil {
			return err
		}
		d.line(start, indent, label, "map(%d)", n)
		for i := 0; i < n; i++ {
			if err := d.value(indent+1, "key: "); err != nil {
				return err
			}
			if err := d.value(indent+1, "val: "); err != nil {
				return err
			}
		}
		d.r.leave()
	case TagExt:
		name, err := d.r.readBlob()
		if err != nil {
			return err
		}
		payload, err := d.r.readBlob()
		if err != nil {
			return err
		}
		d.line(start, indent, label, "ext %q[%d] %s", name, len(payload), hex.EncodeToString(payload))
	default:
		return d.r.failAt(start, "unknown tag %d", b)
	}
	return nil
}
