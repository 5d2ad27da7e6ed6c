// Package packify encodes values into a recursive, self-describing binary
// form. Every value starts with a one-byte Tag; lengths and counts are
// unsigned varints. Sets are written in canonical order, so equal values
// always produce equal bytes. Types outside the built-in kinds travel as
// named extension payloads resolved through a Registry.
package packify

import "fmt"

// Tag is the single leading byte that identifies the kind of an encoded value.
type Tag uint8

const (
	TagNull Tag = iota
	TagBool
	TagInt
	TagFloat
	TagDecimal
	TagText
	TagBytes
	TagByteArray
	TagTuple
	TagList
	TagSet
	TagMap
	TagExt

	tagCount
)

var tagNames = [tagCount]string{
	TagNull:      "null",
	TagBool:      "bool",
	TagInt:       "int",
	TagFloat:     "float",
	TagDecimal:   "decimal",
	TagText:      "text",
	TagBytes:     "bytes",
	TagByteArray: "bytearray",
	TagTuple:     "tuple",
	TagList:      "list",
	TagSet:       "set",
	TagMap:       "map",
	TagExt:       "ext",
}

// Valid reports whether t is one of the defined tags.
func (t Tag) Valid() bool {
	return t < tagCount
}

func (t Tag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
	return tagNames[t]
}

// IsContainer reports whether the tag is followed by an element count.
func (t Tag) IsContainer() bool {
	switch t {
	case TagTuple, TagList, TagSet, TagMap:
		return true
	default:
		return false
	}
}

