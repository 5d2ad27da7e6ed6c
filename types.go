package packify

import (
	"maps"
	"slices"
)

// Tuple is the immutable sequence kind. A plain []any is the mutable kind;
// the two never decode into each other.
type Tuple []any

// ByteArray is the mutable byte-blob kind. A plain []byte is the immutable kind.
type ByteArray []byte

// Entry is one key/value pair of a Map.
type Entry struct {
	Key   any
	Value any
}

// Set is an unordered collection of unique values. Membership is decided by
// canonical encoding: two values are the same element when they pack to the
// same bytes. Elements must not be mutated after they are added.
//
// The zero value is an empty set ready to use.
type Set struct {
	items map[string]any
}

// NewSet returns a set holding items.
func NewSet(items ...any) (*Set, error) {
	s := &Set{items: make(map[string]any, len(items))}
	for _, item := range items {
		if err := s.Add(item); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add inserts v. Adding an element that is already present is a no-op.
func (s *Set) Add(v any) error {
	k, err := encodeKey(v, 0)
	if err != nil {
		return err
	}
	if s.items == nil {
		s.items = make(map[string]any)
	}
	if _, ok := s.items[k]; !ok {
		s.items[k] = v
	}
	return nil
}

// Has reports whether v is an element of s.
func (s *Set) Has(v any) bool {
	if s == nil || len(s.items) == 0 {
		return false
	}
	k, err := encodeKey(v, 0)
	if err != nil {
		return false
	}
	_, ok := s.items[k]
	return ok
}

// Remove deletes v and reports whether it was present.
func (s *Set) Remove(v any) bool {
	if s == nil || len(s.items) == 0 {
		return false
	}
	k, err := encodeKey(v, 0)
	if err != nil {
		return false
	}
	if _, ok := s.items[k]; !ok {
		return false
	}
	delete(s.items, k)
	return true
}

// Len returns the number of elements.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Items returns the elements in canonical order.
func (s *Set) Items() []any {
	if s == nil {
		return nil
	}
	keys := slices.Sorted(maps.Keys(s.items))
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = s.items[k]
	}
	return out
}

// Equal reports whether s and o hold the same elements.
func (s *Set) Equal(o *Set) bool {
	if s.Len() != o.Len() {
		return false
	}
	if s.Len() == 0 {
		return true
	}
	for k := range s.items {
		if _, ok := o.items[k]; !ok {
			return false
		}
	}
	return true
}

// Map is an insertion-ordered mapping. Keys are arbitrary packable values
// and are unique by canonical encoding.
//
// The zero value is an empty map ready to use.
type Map struct {
	entries []Entry
	keys    []string
	index   map[string]int
}

// NewMap returns an empty map with room for n entries.
func NewMap(n ...int) *Map {
	size := 0
	if len(n) > 0 {
		size = n[0]
	}
	return &Map{
		entries: make([]Entry, 0, size),
		keys:    make([]string, 0, size),
		index:   make(map[string]int, size),
	}
}

// Set associates v with k. Replacing an existing key keeps its position.
func (m *Map) Set(k, v any) error {
	key, err := encodeKey(k, 0)
	if err != nil {
		return err
	}
	if i, ok := m.index[key]; ok {
		m.entries[i].Value = v
		return nil
	}
	m.append(key, k, v)
	return nil
}

func (m *Map) append(key string, k, v any) {
	if m.index == nil {
		m.index = make(map[string]int)
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, Entry{Key: k, Value: v})
	m.keys = append(m.keys, key)
}

func (m *Map) has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Get returns the value stored under k.
func (m *Map) Get(k any) (any, bool) {
	if m == nil || len(m.entries) == 0 {
		return nil, false
	}
	key, err := encodeKey(k, 0)
	if err != nil {
		return nil, false
	}
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.entries[i].Value, true
}

// Delete removes k and reports whether it was present.
func (m *Map) Delete(k any) bool {
	if m == nil || len(m.entries) == 0 {
		return false
	}
	key, err := encodeKey(k, 0)
	if err != nil {
		return false
	}
	i, ok := m.index[key]
	if !ok {
		return false
	}
	m.entries = slices.Delete(m.entries, i, i+1)
	m.keys = slices.Delete(m.keys, i, i+1)
	delete(m.index, key)
	for j := i; j < len(m.keys); j++ {
		m.index[m.keys[j]] = j
	}
	return true
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []any {
	if m == nil {
		return nil
	}
	out := make([]any, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Key
	}
	return out
}

// Entries returns a copy of the entries in insertion order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	return slices.Clone(m.entries)
}

// Range calls fn for each entry in insertion order until fn returns false.
func (m *Map) Range(fn func(k, v any) bool) {
	if m == nil {
		return
	}
	for _, e := range m.entries {
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// Equal reports whether m and o hold the same entries in the same order.
func (m *Map) Equal(o *Map) bool {
	return Equal(m, o)
}

// RawExtension is an extension value whose type was not resolved. Packing it
// reproduces the original bytes, so it can be carried through untouched.
type RawExtension struct {
	Name string
	Data []byte
}

func (r *RawExtension) TypeName() string { return r.Name }

func (r *RawExtension) Pack() ([]byte, error) { return r.Data, nil }
