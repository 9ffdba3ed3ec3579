package core

import (
	"bytes"
	"testing"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	buf, err := Serialize(v)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(buf)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	return got
}

func TestRoundTripPrimitives(t *testing.T) {
	cases := []Value{
		None,
		SomeValue(U32Value(7)),
		BoolValue(true),
		BoolValue(false),
		U8Value(250),
		I8Value(-42),
		U16Value(60000),
		I16Value(-30000),
		U32Value(4_000_000_000),
		I32Value(-2_000_000_000),
		U64Value(18_000_000_000_000_000_000),
		I64Value(-9_000_000_000_000_000_000),
		F32Value(3.5),
		F64Value(-1.25e10),
		StringValue("hello, aldrin"),
		BytesValue([]byte{1, 2, 3, 4}),
	}
	for i, c := range cases {
		got := roundTrip(t, c)
		if got.Kind != c.Kind {
			t.Fatalf("case %d: kind mismatch: got %v want %v", i, got.Kind, c.Kind)
		}
		switch c.Kind {
		case KindU8:
			if got.U8 != c.U8 {
				t.Fatalf("case %d: %v != %v", i, got.U8, c.U8)
			}
		case KindString:
			if got.String != c.String {
				t.Fatalf("case %d: %q != %q", i, got.String, c.String)
			}
		case KindBytes:
			if !bytes.Equal(got.Bytes, c.Bytes) {
				t.Fatalf("case %d: bytes mismatch", i)
			}
		}
	}
}

func TestRoundTripVec(t *testing.T) {
	v := Vec1Value([]Value{U32Value(1), U32Value(2), StringValue("three")})
	got := roundTrip(t, v)
	if len(got.Vec) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(got.Vec))
	}
	if got.Vec[2].String != "three" {
		t.Fatalf("expected element 2 to be 'three', got %q", got.Vec[2].String)
	}
}

func TestRoundTripStructUnknownFieldSurvives(t *testing.T) {
	// A struct with an unrecognized field id must still round-trip: the
	// codec is schema-less, so "unknown field" is a caller-level
	// concern, not a decode error.
	v := StructValue([]StructField{
		{Id: 1, Value: StringValue("name")},
		{Id: 99, Value: U32Value(42)}, // caller doesn't know field 99
	})
	got := roundTrip(t, v)
	if len(got.Struct) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(got.Struct))
	}
	found := false
	for _, f := range got.Struct {
		if f.Id == 99 && f.Value.U32 == 42 {
			found = true
		}
	}
	if !found {
		t.Fatalf("unknown field id 99 did not survive round trip")
	}
}

func TestRoundTripMapAndSet(t *testing.T) {
	m := Value{
		Kind:    KindStringMap,
		KeyKind: KindString,
		Map: []MapEntry{
			{Key: StringValue("a"), Value: U32Value(1)},
			{Key: StringValue("b"), Value: U32Value(2)},
		},
	}
	got := roundTrip(t, m)
	if len(got.Map) != 2 || got.Map[1].Key.String != "b" || got.Map[1].Value.U32 != 2 {
		t.Fatalf("map round trip mismatch: %+v", got)
	}

	s := Value{
		Kind:    KindU32Set,
		KeyKind: KindU32,
		Set:     []Value{U32Value(5), U32Value(6)},
	}
	gotSet := roundTrip(t, s)
	if len(gotSet.Set) != 2 || gotSet.Set[0].U32 != 5 {
		t.Fatalf("set round trip mismatch: %+v", gotSet)
	}
}

func TestRoundTripEnum(t *testing.T) {
	v := EnumValue(3, StringValue("payload"))
	got := roundTrip(t, v)
	if got.EnumVariant != 3 || got.EnumValue == nil || got.EnumValue.String != "payload" {
		t.Fatalf("enum round trip mismatch: %+v", got)
	}
}

func TestDepthBoundRejectsOverflow(t *testing.T) {
	v := U32Value(0)
	for i := 0; i < MaxValueDepth+1; i++ {
		v = SomeValue(v)
	}
	if _, err := Serialize(v); err != ErrTooDeeplyNested {
		t.Fatalf("expected ErrTooDeeplyNested, got %v", err)
	}
}

func TestDepthBoundAcceptsAtLimit(t *testing.T) {
	v := U32Value(0)
	for i := 0; i < MaxValueDepth; i++ {
		v = SomeValue(v)
	}
	if _, err := Serialize(v); err != nil {
		t.Fatalf("expected success at exactly MaxValueDepth, got %v", err)
	}
}

func TestSkipAdvancesExactlyAsFarAsDeserialize(t *testing.T) {
	v := StructValue([]StructField{
		{Id: 1, Value: Vec1Value([]Value{StringValue("x"), U64Value(99)})},
		{Id: 2, Value: BytesValue([]byte{9, 8, 7})},
	})
	buf, err := Serialize(v)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	d1 := NewDeserializer(buf)
	if err := d1.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	d2 := NewDeserializer(buf)
	if _, err := d2.Deserialize(); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if d1.pos != d2.pos {
		t.Fatalf("Skip and Deserialize disagree on consumed length: %d vs %d", d1.pos, d2.pos)
	}
	if d1.Remaining() {
		t.Fatalf("expected no trailing bytes after skipping whole value")
	}
}

func TestLenReportsElementCountAndConsumesWholeValue(t *testing.T) {
	v := Vec1Value([]Value{U32Value(1), U32Value(2), U32Value(3), U32Value(4)})
	buf, err := Serialize(v)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	d := NewDeserializer(buf)
	n, err := d.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected length 4, got %d", n)
	}
	if d.Remaining() {
		t.Fatalf("expected Len to consume the whole value")
	}
}

func TestDeserializeTruncatedInputIsEoi(t *testing.T) {
	v := StringValue("a string long enough that the truncation cuts into its payload")
	buf, err := Serialize(v)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	truncated := buf[:len(buf)-3]
	if _, err := Deserialize(truncated); err != ErrUnexpectedEoi {
		t.Fatalf("expected ErrUnexpectedEoi, got %v", err)
	}
}

func TestDeserializeRejectsTrailingBytes(t *testing.T) {
	buf, err := Serialize(U32Value(1))
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	buf = append(buf, 0xff)
	if _, err := Deserialize(buf); err != ErrMoreElementsRemain {
		t.Fatalf("expected ErrMoreElementsRemain, got %v", err)
	}
}

func TestZigzagVarintRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 127, -128, 1 << 40, -(1 << 40)}
	for _, v := range values {
		buf := putVarint64(nil, v)
		got, n, ok := getVarint64(buf)
		if !ok || n != len(buf) || got != v {
			t.Fatalf("varint64 round trip failed for %d: got %d ok=%v n=%d/%d", v, got, ok, n, len(buf))
		}
	}
}
