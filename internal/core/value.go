package core

// ValueKind is the one-byte discriminant that begins every encoded
// value. It fully determines how many subsequent bytes belong to the
// value, which is what lets Skip/Len operate without a schema.
type ValueKind byte

const (
	KindNone ValueKind = iota
	KindSome
	KindBool
	KindU8
	KindI8
	KindU16
	KindI16
	KindU32
	KindI32
	KindU64
	KindI64
	KindF32
	KindF64
	KindString
	KindUuid
	KindObjectId
	KindServiceId
	KindVec1
	KindBytes
	KindU8Map
	KindI8Map
	KindU16Map
	KindI16Map
	KindU32Map
	KindI32Map
	KindU64Map
	KindI64Map
	KindStringMap
	KindUuidMap
	KindU8Set
	KindI8Set
	KindU16Set
	KindI16Set
	KindU32Set
	KindI32Set
	KindU64Set
	KindI64Set
	KindStringSet
	KindUuidSet
	KindStruct
	KindEnum
	KindSender
	KindReceiver
	KindVec2
)

// MaxValueDepth bounds recursion for both encoding and decoding,
// protecting against stack exhaustion on malicious or malformed input.
const MaxValueDepth = 32

// Value is a structured sum of primitive, aggregate, and referential
// variants. It is the generic, schema-less representation every
// argument, event payload, and channel item round-trips through.
//
// Exactly one of the typed fields is meaningful, selected by Kind. This
// mirrors the Rust reference's tagged-union Value, flattened into a Go
// struct because Go has no enum-with-payload sum type; callers that
// want exhaustiveness checking should switch on Kind.
type Value struct {
	Kind ValueKind

	Bool   bool
	U8     uint8
	I8     int8
	U16    uint16
	I16    int16
	U32    uint32
	I32    int32
	U64    uint64
	I64    int64
	F32    float32
	F64    float64
	String string
	Uuid   [16]byte

	ObjectId  ObjectId
	ServiceId ServiceId
	Sender    ChannelCookie
	Receiver  ChannelCookie

	Some  *Value
	Vec   []Value // Vec1 and Vec2 share this representation
	Bytes []byte

	// Map holds keyed-map entries (see MapEntry); KeyKind records which
	// <K>Map variant this is.
	KeyKind ValueKind
	Map     []MapEntry

	// Set holds set elements; KeyKind records which <K>Set variant.
	Set []Value

	// Struct holds (field id, value) pairs. Order is not meaningful;
	// ids are unique per encoding.
	Struct []StructField

	// Enum holds a single (variant, value) pair. Unit variants use a
	// None payload (EnumValue.Kind == KindNone).
	EnumVariant uint32
	EnumValue   *Value
}

// MapEntry is one (key, value) pair of a keyed map. Key is the fully
// typed key value (its Kind matches the map's KeyKind); on the wire
// only the key's raw encoding (without its own kind byte) is present,
// since the outer discriminant already names the key kind.
type MapEntry struct {
	Key   Value
	Value Value
}

// StructField is one (field id, value) pair of a Struct value.
type StructField struct {
	Id    uint32
	Value Value
}

// None is the canonical empty Value.
var None = Value{Kind: KindNone}

// SomeValue wraps v in a Some.
func SomeValue(v Value) Value {
	cp := v
	return Value{Kind: KindSome, Some: &cp}
}

func BoolValue(b bool) Value     { return Value{Kind: KindBool, Bool: b} }
func U8Value(v uint8) Value      { return Value{Kind: KindU8, U8: v} }
func I8Value(v int8) Value       { return Value{Kind: KindI8, I8: v} }
func U16Value(v uint16) Value    { return Value{Kind: KindU16, U16: v} }
func I16Value(v int16) Value     { return Value{Kind: KindI16, I16: v} }
func U32Value(v uint32) Value    { return Value{Kind: KindU32, U32: v} }
func I32Value(v int32) Value     { return Value{Kind: KindI32, I32: v} }
func U64Value(v uint64) Value    { return Value{Kind: KindU64, U64: v} }
func I64Value(v int64) Value     { return Value{Kind: KindI64, I64: v} }
func F32Value(v float32) Value   { return Value{Kind: KindF32, F32: v} }
func F64Value(v float64) Value   { return Value{Kind: KindF64, F64: v} }
func StringValue(s string) Value { return Value{Kind: KindString, String: s} }
func BytesValue(b []byte) Value  { return Value{Kind: KindBytes, Bytes: b} }

func Vec1Value(elems []Value) Value { return Value{Kind: KindVec1, Vec: elems} }
func Vec2Value(elems []Value) Value { return Value{Kind: KindVec2, Vec: elems} }

func StructValue(fields []StructField) Value {
	return Value{Kind: KindStruct, Struct: fields}
}

func EnumValue(variant uint32, payload Value) Value {
	cp := payload
	return Value{Kind: KindEnum, EnumVariant: variant, EnumValue: &cp}
}

func SenderValue(c ChannelCookie) Value   { return Value{Kind: KindSender, Sender: c} }
func ReceiverValue(c ChannelCookie) Value { return Value{Kind: KindReceiver, Receiver: c} }

func ObjectIdValue(id ObjectId) Value   { return Value{Kind: KindObjectId, ObjectId: id} }
func ServiceIdValue(id ServiceId) Value { return Value{Kind: KindServiceId, ServiceId: id} }

// isContainerKind reports whether kind carries nested values and so
// must participate in the depth bound.
func isContainerKind(k ValueKind) bool {
	switch k {
	case KindSome, KindVec1, KindVec2, KindStruct, KindEnum:
		return true
	}
	return isMapKind(k) || isSetKind(k)
}

func isMapKind(k ValueKind) bool {
	return k >= KindU8Map && k <= KindUuidMap
}

func isSetKind(k ValueKind) bool {
	return k >= KindU8Set && k <= KindUuidSet
}

// mapKeyKind returns the primitive ValueKind of elements in the <K>Map
// family identified by mapKind (U8Map -> U8, etc).
func mapKeyKind(mapKind ValueKind) ValueKind {
	offset := mapKind - KindU8Map
	if offset >= 8 {
		// String and Uuid follow F32/F64 in the kind enumeration.
		return KindString + (offset - 8)
	}
	return KindU8 + offset
}

func setKeyKind(setKind ValueKind) ValueKind {
	offset := setKind - KindU8Set
	if offset >= 8 {
		return KindString + (offset - 8)
	}
	return KindU8 + offset
}

func mapKindForKey(keyKind ValueKind) ValueKind {
	return KindU8Map + (keyKind - KindU8)
}

func setKindForKey(keyKind ValueKind) ValueKind {
	return KindU8Set + (keyKind - KindU8)
}
