package packify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSetOperations(t *testing.T) {
	var s Set
	if s.Len() != 0 || s.Has(1) {
		t.Fatalf("zero set not empty")
	}
	for _, v := range []any{"b", int64(2), "a", int64(2), nil} {
		if err := s.Add(v); err != nil {
			t.Fatalf("add %v: %v", v, err)
		}
	}
	if s.Len() != 4 {
		t.Fatalf("len = %d, want 4", s.Len())
	}
	if !s.Has(2) || !s.Has("a") || s.Has("c") {
		t.Fatalf("membership wrong: %v", s.Items())
	}
	// Items follow encoded order: null (0x00) < int (0x02) < text (0x05).
	if diff := cmp.Diff([]any{nil, int64(2), "a", "b"}, s.Items()); diff != "" {
		t.Fatalf("items (-want +got):\n%s", diff)
	}
	if !s.Remove("a") || s.Remove("a") {
		t.Fatalf("remove reported wrong presence")
	}
	if err := s.Add(make(chan int)); err == nil {
		t.Fatalf("add of unsupported value succeeded")
	}
}

func TestSetEqual(t *testing.T) {
	a := mustSet(t, 1, 2, 3)
	b := mustSet(t, 3, 1, 2)
	if !a.Equal(b) {
		t.Fatalf("sets with the same elements are not equal")
	}
	if a.Equal(mustSet(t, 1, 2)) {
		t.Fatalf("sets with different elements are equal")
	}
	var empty *Set
	if !empty.Equal(&Set{}) {
		t.Fatalf("nil and empty sets differ")
	}
}

func TestMapOperations(t *testing.T) {
	var m Map
	if m.Len() != 0 {
		t.Fatalf("zero map not empty")
	}
	for i, k := range []any{"x", int64(1), Tuple{"a"}} {
		if err := m.Set(k, i); err != nil {
			t.Fatalf("set %v: %v", k, err)
		}
	}
	if err := m.Set(1, "replaced"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if v, ok := m.Get(uint8(1)); !ok || v != "replaced" {
		t.Fatalf("get(1) = %v, %v", v, ok)
	}
	if v, ok := m.Get(Tuple{"a"}); !ok || v != 2 {
		t.Fatalf("get(tuple) = %v, %v", v, ok)
	}
	if diff := cmp.Diff([]any{"x", int64(1), Tuple{"a"}}, m.Keys()); diff != "" {
		t.Fatalf("keys (-want +got):\n%s", diff)
	}
	if !m.Delete("x") || m.Delete("x") {
		t.Fatalf("delete reported wrong presence")
	}
	if v, ok := m.Get(Tuple{"a"}); !ok || v != 2 {
		t.Fatalf("index not rebuilt after delete: %v, %v", v, ok)
	}
	var seen []any
	m.Range(func(k, v any) bool {
		seen = append(seen, k)
		return false
	})
	if len(seen) != 1 {
		t.Fatalf("range did not stop: %v", seen)
	}
	entries := m.Entries()
	entries[0].Value = "mutated"
	if v, _ := m.Get(1); v != "replaced" {
		t.Fatalf("entries aliased the map")
	}
	if err := m.Set(make(chan int), 1); err == nil {
		t.Fatalf("set with unsupported key succeeded")
	}
}

func TestMapEqualIsOrderSensitive(t *testing.T) {
	a := mustMap(t, "a", 1, "b", 2)
	b := mustMap(t, "b", 2, "a", 1)
	if a.Equal(b) {
		t.Fatalf("maps with different order compare equal")
	}
	if !a.Equal(mustMap(t, "a", int64(1), "b", uint(2))) {
		t.Fatalf("maps with equal encodings differ")
	}
}

func TestTagString(t *testing.T) {
	if TagSet.String() != "set" || Tag(99).String() != "tag(99)" {
		t.Fatalf("tag names wrong: %s %s", TagSet, Tag(99))
	}
	if Tag(13).Valid() || !TagExt.Valid() {
		t.Fatalf("tag validity wrong")
	}
	if !TagMap.IsContainer() || TagText.IsContainer() {
		t.Fatalf("container classification wrong")
	}
}
