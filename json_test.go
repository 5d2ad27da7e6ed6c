package packify

import (
	"math"
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromJSON(t *testing.T) {
	data, err := FromJSON([]byte(`{"b":1,"a":[true,null,"b64:AAE=","plain"],"c":-1.5,"d":{}}`))
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	got, err := Unpack(data, nil)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	want := mustMap(t,
		"b", int64(1),
		"a", []any{true, nil, []byte{0, 1}, "plain"},
		"c", -1.5,
		"d", NewMap(),
	)
	if diff := cmp.Diff(want, got, valueOpts); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"b", "a", "c", "d"}, got.(*Map).Keys()); diff != "" {
		t.Fatalf("key order (-want +got):\n%s", diff)
	}
}

func TestFromJSONScalars(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	cases := []struct {
		in   string
		want any
	}{
		{"null", nil},
		{" true ", true},
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"2.5", 2.5},
		{"1e3", 1000.0},
		{`"hi"`, "hi"},
		{`"b64:not base64!"`, "b64:not base64!"},
		{"123456789012345678901234567890", huge},
	}
	for _, tc := range cases {
		got, err := ValueFromJSON([]byte(tc.in))
		if err != nil {
			t.Fatalf("value from json %q: %v", tc.in, err)
		}
		if diff := cmp.Diff(tc.want, got, valueOpts); diff != "" {
			t.Fatalf("%q (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestFromJSONErrors(t *testing.T) {
	for _, in := range []string{"", "   ", "{", "1 2", `{"a":}`} {
		if _, err := FromJSON([]byte(in)); err == nil {
			t.Fatalf("from json %q succeeded", in)
		}
	}
}

func TestValueFromJSONDecoderMatchesSIMD(t *testing.T) {
	for _, in := range []string{
		`{"k":[1,2.5,"s",{"n":null}],"z":false}`,
		`[123456789012345678901234567890]`,
		`{"a":{"b":[-98765432109876543210987654321, 1.5]}}`,
	} {
		simd, err := ValueFromJSON([]byte(in))
		if err != nil {
			t.Fatalf("value from json %s: %v", in, err)
		}
		fallback, err := valueFromJSONDecoder([]byte(in))
		if err != nil {
			t.Fatalf("decoder %s: %v", in, err)
		}
		if diff := cmp.Diff(simd, fallback, valueOpts); diff != "" {
			t.Fatalf("paths disagree for %s (-simd +decoder):\n%s", in, diff)
		}
	}
}

func TestFromJSONNestedBigInteger(t *testing.T) {
	v, err := ValueFromJSON([]byte(`[123456789012345678901234567890]`))
	if err != nil {
		t.Fatalf("value from json: %v", err)
	}
	items := v.([]any)
	x, ok := items[0].(*big.Int)
	if !ok || x.String() != "123456789012345678901234567890" {
		t.Fatalf("element = %T %v, want exact integer", items[0], items[0])
	}
}

func TestToJSON(t *testing.T) {
	huge, _ := new(big.Int).SetString("-123456789012345678901234567890", 10)
	v := mustMap(t,
		"n", nil,
		"i", huge,
		"f", 2.0,
		"d", mustDecimal(t, "1.10"),
		"inf", mustDecimal(t, "Infinity"),
		"s", "q\"\n",
		"b", []byte{0, 1},
		"ba", ByteArray{0xff},
		"t", Tuple{int64(1), true},
		"set", mustSet(t, int64(2), int64(1)),
		"m", mustMap(t, int64(1), "one"),
		"x", &RawExtension{Name: "pt", Data: []byte{1}},
	)
	got, err := ToJSON(mustPack(t, v))
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	want := `{"n":null,"i":-123456789012345678901234567890,"f":2.0,"d":1.10,"inf":"Infinity",` +
		`"s":"q\"\n","b":"b64:AAE=","ba":"b64:/w==","t":[1,true],"set":[1,2],"m":[[1,"one"]],` +
		`"x":{"$type":"pt","$data":"b64:AQ=="}}`
	if string(got) != want {
		t.Fatalf("to json:\n got %s\nwant %s", got, want)
	}
}

func TestToJSONRejectsNonFiniteFloat(t *testing.T) {
	if _, err := ToJSON(mustPack(t, math.NaN())); err == nil {
		t.Fatalf("NaN rendered as json")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	in := `{"a":[1,2.5,"x"],"b":{"c":null,"d":"b64:AQI="},"e":-9007199254740993}`
	packed, err := FromJSON([]byte(in))
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	out, err := ToJSON(packed)
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	if string(out) != in {
		t.Fatalf("round trip:\n got %s\nwant %s", out, in)
	}
}
