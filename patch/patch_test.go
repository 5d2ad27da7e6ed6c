package patch

import (
	"strings"
	"testing"

	"github.com/starfederation/packify-go"
)

type patchCase struct {
	Name   string
	Target string
	Patch  string
	Expect string
	Error  string
}

var patchCases = []patchCase{
	{
		Name:   "add object member",
		Target: `{"foo":"bar"}`,
		Patch:  `[{"op":"add","path":["baz"],"value":"qux"}]`,
		Expect: `{"foo":"bar","baz":"qux"}`,
	},
	{
		Name:   "add array element",
		Target: `{"foo":["bar","baz"]}`,
		Patch:  `[{"op":"add","path":["foo",1],"value":"qux"}]`,
		Expect: `{"foo":["bar","qux","baz"]}`,
	},
	{
		Name:   "append with dash",
		Target: `[1,2]`,
		Patch:  `[{"op":"add","path":["-"],"value":3}]`,
		Expect: `[1,2,3]`,
	},
	{
		Name:   "add replaces existing member in place",
		Target: `{"a":1,"b":2}`,
		Patch:  `[{"op":"add","path":["a"],"value":9}]`,
		Expect: `{"a":9,"b":2}`,
	},
	{
		Name:   "remove member",
		Target: `{"baz":"qux","foo":"bar"}`,
		Patch:  `[{"op":"remove","path":["baz"]}]`,
		Expect: `{"foo":"bar"}`,
	},
	{
		Name:   "remove array element",
		Target: `{"foo":["bar","qux","baz"]}`,
		Patch:  `[{"op":"remove","path":["foo",1]}]`,
		Expect: `{"foo":["bar","baz"]}`,
	},
	{
		Name:   "replace value",
		Target: `{"baz":"qux","foo":"bar"}`,
		Patch:  `[{"op":"replace","path":["baz"],"value":"boo"}]`,
		Expect: `{"baz":"boo","foo":"bar"}`,
	},
	{
		Name:   "replace root",
		Target: `{"a":1}`,
		Patch:  `[{"op":"replace","path":[],"value":[true]}]`,
		Expect: `[true]`,
	},
	{
		Name:   "move value",
		Target: `{"foo":{"bar":"baz","waldo":"fred"},"qux":{"corge":"grault"}}`,
		Patch:  `[{"op":"move","from":["foo","waldo"],"path":["qux","thud"]}]`,
		Expect: `{"foo":{"bar":"baz"},"qux":{"corge":"grault","thud":"fred"}}`,
	},
	{
		Name:   "move array element",
		Target: `{"foo":["all","grass","cows","eat"]}`,
		Patch:  `[{"op":"move","from":["foo",1],"path":["foo",3]}]`,
		Expect: `{"foo":["all","cows","eat","grass"]}`,
	},
	{
		Name:   "copy does not alias",
		Target: `{"a":{"x":1}}`,
		Patch:  `[{"op":"copy","from":["a"],"path":["b"]},{"op":"replace","path":["b","x"],"value":2}]`,
		Expect: `{"a":{"x":1},"b":{"x":2}}`,
	},
	{
		Name:   "test success",
		Target: `{"baz":"qux","foo":["a",2,"c"]}`,
		Patch:  `[{"op":"test","path":["baz"],"value":"qux"},{"op":"test","path":["foo",1],"value":2}]`,
		Expect: `{"baz":"qux","foo":["a",2,"c"]}`,
	},
	{
		Name:   "integer op codes",
		Target: `{}`,
		Patch:  `[{"op":0,"path":["a"],"value":1},{"op":5,"path":["a"],"value":1}]`,
		Expect: `{"a":1}`,
	},
	{
		Name:   "test failure",
		Target: `{"baz":"qux"}`,
		Patch:  `[{"op":"test","path":["baz"],"value":"bar"}]`,
		Error:  "test operation failed",
	},
	{
		Name:   "missing member",
		Target: `{"foo":"bar"}`,
		Patch:  `[{"op":"remove","path":["baz"]}]`,
		Error:  "path not found",
	},
	{
		Name:   "index out of range",
		Target: `[1]`,
		Patch:  `[{"op":"add","path":[5],"value":2}]`,
		Error:  "array index 5 out of range",
	},
	{
		Name:   "text index into array",
		Target: `[1]`,
		Patch:  `[{"op":"replace","path":["0"],"value":2}]`,
		Error:  "expected array index",
	},
	{
		Name:   "traverse scalar",
		Target: `{"a":1}`,
		Patch:  `[{"op":"add","path":["a","b"],"value":2}]`,
		Error:  "path traverses non-container",
	},
	{
		Name:   "move into child",
		Target: `{"a":{"b":1}}`,
		Patch:  `[{"op":"move","from":["a"],"path":["a","c"]}]`,
		Error:  "cannot move a value into one of its children",
	},
	{
		Name:   "remove root",
		Target: `{}`,
		Patch:  `[{"op":"remove","path":[]}]`,
		Error:  "remove cannot target document root",
	},
	{
		Name:   "unknown op",
		Target: `{}`,
		Patch:  `[{"op":"frob","path":[]}]`,
		Error:  `invalid op "frob"`,
	},
	{
		Name:   "missing value",
		Target: `{}`,
		Patch:  `[{"op":"add","path":["a"]}]`,
		Error:  "add requires value",
	},
	{
		Name:   "patch is not a sequence",
		Target: `{}`,
		Patch:  `{"op":"add"}`,
		Error:  "patch root must be a sequence",
	},
}

func TestPatchCases(t *testing.T) {
	for _, tc := range patchCases {
		t.Run(tc.Name, func(t *testing.T) {
			target, err := packify.FromJSON([]byte(tc.Target))
			if err != nil {
				t.Fatalf("FromJSON target: %v", err)
			}
			patchDoc, err := packify.FromJSON([]byte(tc.Patch))
			if err != nil {
				t.Fatalf("FromJSON patch: %v", err)
			}
			out, err := ApplyPatch(target, patchDoc)
			if tc.Error != "" {
				if err == nil {
					t.Fatalf("expected error %q", tc.Error)
				}
				if !strings.Contains(err.Error(), tc.Error) {
					t.Fatalf("error mismatch: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyPatch: %v", err)
			}
			got, err := packify.ToJSON(out)
			if err != nil {
				t.Fatalf("ToJSON: %v", err)
			}
			if string(got) != tc.Expect {
				t.Fatalf("mismatch: got=%s want=%s", got, tc.Expect)
			}
		})
	}
}

func TestPatchKeepsPackifyKinds(t *testing.T) {
	s, err := packify.NewSet(int64(1), int64(2))
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	m := packify.NewMap()
	if err := m.Set(int64(7), packify.Tuple{"a", "b"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set("s", s); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set("x", &packify.RawExtension{Name: "pt", Data: []byte{1}}); err != nil {
		t.Fatalf("set: %v", err)
	}
	target, err := packify.Pack(m)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	patchDoc, err := packify.Pack([]any{
		mustOp(t, "op", "add", "path", []any{int64(7), int64(0)}, "value", "z"),
		mustOp(t, "op", "test", "path", []any{"s"}, "value", s),
	})
	if err != nil {
		t.Fatalf("pack patch: %v", err)
	}
	out, err := ApplyPatch(target, patchDoc)
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	got, err := packify.DecOptions{RawExtensions: true}.Unpack(out, nil)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	tuple, _ := got.(*packify.Map).Get(int64(7))
	if !packify.Equal(tuple, packify.Tuple{"z", "a", "b"}) {
		t.Fatalf("tuple = %#v", tuple)
	}
	if _, ok := tuple.(packify.Tuple); !ok {
		t.Fatalf("tuple sub-kind lost: %T", tuple)
	}
	ext, _ := got.(*packify.Map).Get("x")
	if raw, ok := ext.(*packify.RawExtension); !ok || raw.Name != "pt" {
		t.Fatalf("extension = %#v", ext)
	}
}

func mustOp(t *testing.T, kv ...any) *packify.Map {
	t.Helper()
	m := packify.NewMap()
	for i := 0; i+1 < len(kv); i += 2 {
		if err := m.Set(kv[i], kv[i+1]); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	return m
}
