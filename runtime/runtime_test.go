package runtime

import (
	"errors"
	"testing"

	"github.com/starfederation/packify-go"
)

type tag struct {
	name  string
	value string
}

func (t *tag) TypeName() string { return t.name }

func (t *tag) Pack() ([]byte, error) { return packify.Pack(t.value) }

func tagUnpacker(name string) packify.Unpacker {
	return packify.Func(func(data []byte, reg packify.Registry) (*tag, error) {
		v, err := packify.Unpack(data, reg)
		if err != nil {
			return nil, err
		}
		s, _ := v.(string)
		return &tag{name: name, value: s}, nil
	})
}

func TestRegister(t *testing.T) {
	t.Cleanup(func() { Unregister("runtime.tag") })
	if err := Register("runtime.tag", tagUnpacker("global")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register("runtime.tag", tagUnpacker("again")); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
	if err := Register("", tagUnpacker("x")); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("empty name: err = %v", err)
	}
	if err := Register("runtime.nil", nil); !errors.Is(err, ErrNilUnpacker) {
		t.Fatalf("nil unpacker: err = %v", err)
	}
	if _, ok := Lookup("runtime.tag"); !ok {
		t.Fatalf("lookup failed after register")
	}
	if !Unregister("runtime.tag") || Unregister("runtime.tag") {
		t.Fatalf("unregister did not report presence correctly")
	}
	if _, ok := Lookup("runtime.tag"); ok {
		t.Fatalf("lookup succeeded after unregister")
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	t.Cleanup(func() { Unregister("runtime.must") })
	MustRegister("runtime.must", tagUnpacker("global"))
	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate MustRegister did not panic")
		}
	}()
	MustRegister("runtime.must", tagUnpacker("global"))
}

func TestUnpackInjectOverridesGlobal(t *testing.T) {
	t.Cleanup(func() { Unregister("runtime.over") })
	MustRegister("runtime.over", tagUnpacker("global"))
	data, err := packify.Pack(&tag{name: "runtime.over", value: "v"})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	v, err := Unpack(data, nil)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if got := v.(*tag); got.name != "global" || got.value != "v" {
		t.Fatalf("global unpack = %+v", got)
	}

	v, err = Unpack(data, packify.Registry{"runtime.over": tagUnpacker("injected")})
	if err != nil {
		t.Fatalf("unpack with inject: %v", err)
	}
	if got := v.(*tag); got.name != "injected" {
		t.Fatalf("inject did not win: %+v", got)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	t.Cleanup(func() { Unregister("runtime.snap") })
	snap := Snapshot(nil)
	MustRegister("runtime.snap", tagUnpacker("global"))
	if _, ok := snap.Lookup("runtime.snap"); ok {
		t.Fatalf("snapshot observed a later registration")
	}
	snap["runtime.local"] = tagUnpacker("local")
	if _, ok := Lookup("runtime.local"); ok {
		t.Fatalf("snapshot mutation leaked into the global registry")
	}
}

func TestUnpackMissingExtension(t *testing.T) {
	data, err := packify.Pack(&tag{name: "runtime.unknown", value: "v"})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	var usage *packify.UsageError
	if _, err := Unpack(data, nil); !errors.As(err, &usage) || usage.Name != "runtime.unknown" {
		t.Fatalf("err = %v, want usage error naming the extension", err)
	}
}

func TestUnmarshal(t *testing.T) {
	t.Cleanup(func() { Unregister("runtime.um") })
	MustRegister("runtime.um", tagUnpacker("global"))
	data, err := packify.Pack([]any{&tag{name: "runtime.um", value: "a"}})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	var out []*tag
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].value != "a" {
		t.Fatalf("unmarshal = %+v", out)
	}
}
