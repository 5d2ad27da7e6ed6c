// Package yaml converts between YAML documents and packed data.
//
// Mapping order is preserved in both directions. Kinds without a YAML
// equivalent use local tags: !tuple, !bytearray, !decimal and !ext. Immutable
// bytes use !!binary and sets use !!set.
package yaml

import (
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
	"github.com/starfederation/packify-go"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	tagNull      = "!!null"
	tagBool      = "!!bool"
	tagInt       = "!!int"
	tagFloat     = "!!float"
	tagStr       = "!!str"
	tagBinary    = "!!binary"
	tagSeq       = "!!seq"
	tagMap       = "!!map"
	tagSet       = "!!set"
	tagTuple     = "!tuple"
	tagByteArray = "!bytearray"
	tagDecimal   = "!decimal"
	tagExt       = "!ext"
)

// FromYAML parses a single YAML document and packs it.
func FromYAML(data []byte) ([]byte, error) {
	var doc yamlv3.Node
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		return packify.Pack(nil)
	}
	v, err := nodeToValue(&doc)
	if err != nil {
		return nil, err
	}
	return packify.Pack(v)
}

// ToYAML renders packed data as YAML. Extension values are not resolved.
func ToYAML(data []byte) ([]byte, error) {
	v, err := packify.DecOptions{RawExtensions: true}.Unpack(data, nil)
	if err != nil {
		return nil, err
	}
	n, err := valueToNode(v)
	if err != nil {
		return nil, err
	}
	return yamlv3.Marshal(n)
}

func nodeToValue(n *yamlv3.Node) (any, error) {
	switch n.Kind {
	case yamlv3.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return nodeToValue(n.Content[0])
	case yamlv3.AliasNode:
		return nodeToValue(n.Alias)
	case yamlv3.ScalarNode:
		return scalarToValue(n)
	case yamlv3.SequenceNode:
		items := make([]any, len(n.Content))
		for i, c := range n.Content {
			v, err := nodeToValue(c)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		if n.ShortTag() == tagTuple {
			return packify.Tuple(items), nil
		}
		return items, nil
	case yamlv3.MappingNode:
		switch n.ShortTag() {
		case tagSet:
			s := &packify.Set{}
			for i := 0; i+1 < len(n.Content); i += 2 {
				k, err := nodeToValue(n.Content[i])
				if err != nil {
					return nil, err
				}
				if err := s.Add(k); err != nil {
					return nil, err
				}
			}
			return s, nil
		case tagExt:
			return extFromNode(n)
		}
		m := packify.NewMap(len(n.Content) / 2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, err := nodeToValue(n.Content[i])
			if err != nil {
				return nil, err
			}
			v, err := nodeToValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			if err := m.Set(k, v); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
	}
}

func scalarToValue(n *yamlv3.Node) (any, error) {
	switch n.ShortTag() {
	case tagNull:
		return nil, nil
	case tagBool:
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case tagInt:
		var i int64
		if err := n.Decode(&i); err == nil {
			return i, nil
		}
		x, ok := new(big.Int).SetString(strings.ReplaceAll(n.Value, "_", ""), 0)
		if !ok {
			return nil, fmt.Errorf("line %d: invalid integer %q", n.Line, n.Value)
		}
		return x, nil
	case tagFloat:
		// Untagged integers beyond 64 bits resolve as floats.
		if n.Style&yamlv3.TaggedStyle == 0 {
			if x, ok := new(big.Int).SetString(n.Value, 10); ok {
				return x, nil
			}
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return f, nil
	case tagBinary:
		return decodeBase64(n)
	case tagByteArray:
		b, err := decodeBase64(n)
		if err != nil {
			return nil, err
		}
		return packify.ByteArray(b), nil
	case tagDecimal:
		d, _, err := apd.NewFromString(n.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid decimal %q", n.Line, n.Value)
		}
		return d, nil
	case tagStr:
		return n.Value, nil
	default:
		return nil, fmt.Errorf("line %d: unsupported yaml tag %s", n.Line, n.Tag)
	}
}

func decodeBase64(n *yamlv3.Node) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), ""))
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", n.Line, err)
	}
	return b, nil
}

func extFromNode(n *yamlv3.Node) (any, error) {
	ext := &packify.RawExtension{}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		switch k.Value {
		case "type":
			ext.Name = v.Value
		case "data":
			b, err := decodeBase64(v)
			if err != nil {
				return nil, err
			}
			ext.Data = b
		default:
			return nil, fmt.Errorf("line %d: unknown extension field %q", k.Line, k.Value)
		}
	}
	if ext.Name == "" {
		return nil, fmt.Errorf("line %d: extension without type", n.Line)
	}
	return ext, nil
}

func scalar(tag, value string) *yamlv3.Node {
	return &yamlv3.Node{Kind: yamlv3.ScalarNode, Tag: tag, Value: value}
}

func binaryScalar(tag string, b []byte) *yamlv3.Node {
	return scalar(tag, base64.StdEncoding.EncodeToString(b))
}

func valueToNode(v any) (*yamlv3.Node, error) {
	switch x := v.(type) {
	case nil:
		return scalar(tagNull, "null"), nil
	case bool:
		return scalar(tagBool, strconv.FormatBool(x)), nil
	case int64:
		return scalar(tagInt, strconv.FormatInt(x, 10)), nil
	case *big.Int:
		return scalar(tagInt, x.String()), nil
	case float64:
		return scalar(tagFloat, formatFloat(x)), nil
	case *apd.Decimal:
		return scalar(tagDecimal, x.String()), nil
	case string:
		return scalar(tagStr, x), nil
	case []byte:
		return binaryScalar(tagBinary, x), nil
	case packify.ByteArray:
		return binaryScalar(tagByteArray, x), nil
	case packify.Tuple:
		return sequenceNode(tagTuple, x)
	case []any:
		return sequenceNode(tagSeq, x)
	case *packify.Set:
		n := &yamlv3.Node{Kind: yamlv3.MappingNode, Tag: tagSet}
		for _, item := range x.Items() {
			k, err := valueToNode(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, k, scalar(tagNull, "null"))
		}
		return n, nil
	case *packify.Map:
		n := &yamlv3.Node{Kind: yamlv3.MappingNode, Tag: tagMap}
		for _, e := range x.Entries() {
			k, err := valueToNode(e.Key)
			if err != nil {
				return nil, err
			}
			val, err := valueToNode(e.Value)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, k, val)
		}
		return n, nil
	case *packify.RawExtension:
		return &yamlv3.Node{Kind: yamlv3.MappingNode, Tag: tagExt, Content: []*yamlv3.Node{
			scalar(tagStr, "type"), scalar(tagStr, x.Name),
			scalar(tagStr, "data"), binaryScalar(tagBinary, x.Data),
		}}, nil
	default:
		return nil, fmt.Errorf("unexpected decoded value %T", v)
	}
}

func sequenceNode(tag string, items []any) (*yamlv3.Node, error) {
	n := &yamlv3.Node{Kind: yamlv3.SequenceNode, Tag: tag}
	for _, item := range items {
		c, err := valueToNode(item)
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, c)
	}
	return n, nil
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
