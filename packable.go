package packify

import (
	"reflect"
)

// Packable is implemented by extension types that can be embedded in a
// packed stream. Pack must be deterministic: equal values produce equal bytes.
type Packable interface {
	Pack() ([]byte, error)
}

// TypeNamer lets an extension type choose the identifier written next to its
// payload. Types that do not implement it are identified by their Go type name.
type TypeNamer interface {
	TypeName() string
}

// Unpacker rebuilds an extension value from its payload. Implementations that
// own nested values decode them with Unpack(data, reg), forwarding reg so
// nested extension types resolve against the same registry.
type Unpacker interface {
	Unpack(data []byte, reg Registry) (Packable, error)
}

// UnpackerFunc adapts a function to the Unpacker interface.
type UnpackerFunc func(data []byte, reg Registry) (Packable, error)

func (f UnpackerFunc) Unpack(data []byte, reg Registry) (Packable, error) {
	return f(data, reg)
}

// Func adapts a typed constructor such as
//
//	func UnpackPoint(data []byte, reg packify.Registry) (*Point, error)
//
// to an Unpacker.
func Func[T Packable](fn func(data []byte, reg Registry) (T, error)) Unpacker {
	return UnpackerFunc(func(data []byte, reg Registry) (Packable, error) {
		v, err := fn(data, reg)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
}

// Registry maps extension identifiers to the types that decode them. It is
// owned by the caller, read-only while a decode runs, and never persisted.
type Registry map[string]Unpacker

// Lookup returns the Unpacker registered for name.
func (r Registry) Lookup(name string) (Unpacker, bool) {
	if r == nil {
		return nil, false
	}
	u, ok := r[name]
	return u, ok && u != nil
}

// Clone returns a shallow copy of the registry.
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// TypeName returns the identifier Pack writes for p.
func TypeName(p Packable) string {
	if n, ok := p.(TypeNamer); ok {
		return n.TypeName()
	}
	return typeNameOf(reflect.TypeOf(p))
}

func typeNameOf(t reflect.Type) string {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	return t.Name()
}
