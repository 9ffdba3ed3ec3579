package core

import "math"

// Deserializer decodes Values from a byte slice. Len and Skip share the
// same traversal as Deserialize (they just discard the typed payload),
// which is what guarantees they agree with each other on how many bytes
// a value occupies. depth tracks container nesting so a malicious or
// corrupt payload can't blow the stack via unbounded recursion.
type Deserializer struct {
	buf   []byte
	pos   int
	depth int
}

// NewDeserializer returns a Deserializer reading buf from the start.
func NewDeserializer(buf []byte) *Deserializer {
	return &Deserializer{buf: buf}
}

// Remaining reports whether any bytes are left to read.
func (d *Deserializer) Remaining() bool { return d.pos < len(d.buf) }

func (d *Deserializer) readByte() (byte, bool) {
	if d.pos >= len(d.buf) {
		return 0, false
	}
	b := d.buf[d.pos]
	d.pos++
	return b, true
}

func (d *Deserializer) readN(n int) ([]byte, bool) {
	if d.pos+n > len(d.buf) {
		return nil, false
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, true
}

// PeekKind returns the ValueKind of the next value without consuming
// it, or ok=false at end of input.
func (d *Deserializer) PeekKind() (ValueKind, bool) {
	if d.pos >= len(d.buf) {
		return 0, false
	}
	return ValueKind(d.buf[d.pos]), true
}

func (d *Deserializer) enter(kind ValueKind) error {
	if isContainerKind(kind) {
		d.depth++
		if d.depth > MaxValueDepth {
			return ErrTooDeeplyNested
		}
	}
	return nil
}

func (d *Deserializer) leave(kind ValueKind) {
	if isContainerKind(kind) {
		d.depth--
	}
}

// Deserialize decodes one Value starting at the current position.
func (d *Deserializer) Deserialize() (Value, error) {
	kindByte, ok := d.readByte()
	if !ok {
		return Value{}, ErrUnexpectedEoi
	}
	kind := ValueKind(kindByte)
	if err := d.enter(kind); err != nil {
		return Value{}, err
	}
	defer d.leave(kind)
	return d.deserializeBody(kind)
}

func (d *Deserializer) deserializeBody(kind ValueKind) (Value, error) {
	switch kind {
	case KindNone:
		return Value{Kind: KindNone}, nil
	case KindSome:
		inner, err := d.Deserialize()
		if err != nil {
			return Value{}, err
		}
		return SomeValue(inner), nil
	case KindBool:
		b, ok := d.readByte()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return BoolValue(b != 0), nil
	case KindU8:
		b, ok := d.readByte()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return U8Value(b), nil
	case KindI8:
		b, ok := d.readByte()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return I8Value(int8(b)), nil
	case KindU16:
		v, ok := d.getUvarint16()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return U16Value(v), nil
	case KindI16:
		v, ok := d.getVarint16()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return I16Value(v), nil
	case KindU32:
		v, ok := d.getUvarint32()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return U32Value(v), nil
	case KindI32:
		v, ok := d.getVarint32()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return I32Value(v), nil
	case KindU64:
		v, ok := d.getUvarint()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return U64Value(v), nil
	case KindI64:
		v, ok := d.getVarint64()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return I64Value(v), nil
	case KindF32:
		b, ok := d.readN(4)
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return F32Value(math.Float32frombits(bits)), nil
	case KindF64:
		b, ok := d.readN(8)
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits |= uint64(b[i]) << (8 * i)
		}
		return F64Value(math.Float64frombits(bits)), nil
	case KindString:
		b, err := d.readLenPrefixed()
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(b)), nil
	case KindBytes:
		b, err := d.readLenPrefixed()
		if err != nil {
			return Value{}, err
		}
		return BytesValue(append([]byte(nil), b...)), nil
	case KindUuid:
		b, ok := d.readN(16)
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		var u [16]byte
		copy(u[:], b)
		return Value{Kind: KindUuid, Uuid: u}, nil
	case KindObjectId:
		id, err := d.readObjectId()
		if err != nil {
			return Value{}, err
		}
		return ObjectIdValue(id), nil
	case KindServiceId:
		obj, err := d.readObjectId()
		if err != nil {
			return Value{}, err
		}
		svcUuidB, ok := d.readN(16)
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		svcCookieB, ok := d.readN(16)
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		var su ServiceUuid
		var sc ServiceCookie
		copy(su[:], svcUuidB)
		copy(sc[:], svcCookieB)
		return ServiceIdValue(ServiceId{Object: obj, Uuid: su, Cookie: sc}), nil
	case KindSender:
		b, ok := d.readN(16)
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		var c ChannelCookie
		copy(c[:], b)
		return SenderValue(c), nil
	case KindReceiver:
		b, ok := d.readN(16)
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		var c ChannelCookie
		copy(c[:], b)
		return ReceiverValue(c), nil
	case KindVec1, KindVec2:
		n, ok := d.getUvarint32()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		elems := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			e, err := d.Deserialize()
			if err != nil {
				return Value{}, err
			}
			elems = append(elems, e)
		}
		return Value{Kind: kind, Vec: elems}, nil
	case KindStruct:
		n, ok := d.getUvarint32()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		fields := make([]StructField, 0, n)
		for i := uint32(0); i < n; i++ {
			id, ok := d.getUvarint32()
			if !ok {
				return Value{}, ErrUnexpectedEoi
			}
			v, err := d.Deserialize()
			if err != nil {
				return Value{}, err
			}
			fields = append(fields, StructField{Id: id, Value: v})
		}
		return StructValue(fields), nil
	case KindEnum:
		variant, ok := d.getUvarint32()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		payload, err := d.Deserialize()
		if err != nil {
			return Value{}, err
		}
		return EnumValue(variant, payload), nil
	default:
		if isMapKind(kind) {
			return d.deserializeMap(kind)
		}
		if isSetKind(kind) {
			return d.deserializeSet(kind)
		}
		return Value{}, ErrInvalidSerialization
	}
}

func (d *Deserializer) readObjectId() (ObjectId, error) {
	uuidB, ok := d.readN(16)
	if !ok {
		return ObjectId{}, ErrUnexpectedEoi
	}
	cookieB, ok := d.readN(16)
	if !ok {
		return ObjectId{}, ErrUnexpectedEoi
	}
	var u ObjectUuid
	var c ObjectCookie
	copy(u[:], uuidB)
	copy(c[:], cookieB)
	return ObjectId{Uuid: u, Cookie: c}, nil
}

func (d *Deserializer) deserializeMap(kind ValueKind) (Value, error) {
	keyKind := mapKeyKind(kind)
	n, ok := d.getUvarint32()
	if !ok {
		return Value{}, ErrUnexpectedEoi
	}
	entries := make([]MapEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		k, err := d.deserializeKey(keyKind)
		if err != nil {
			return Value{}, err
		}
		v, err := d.Deserialize()
		if err != nil {
			return Value{}, err
		}
		entries = append(entries, MapEntry{Key: k, Value: v})
	}
	return Value{Kind: kind, KeyKind: keyKind, Map: entries}, nil
}

func (d *Deserializer) deserializeSet(kind ValueKind) (Value, error) {
	keyKind := setKeyKind(kind)
	n, ok := d.getUvarint32()
	if !ok {
		return Value{}, ErrUnexpectedEoi
	}
	elems := make([]Value, 0, n)
	for i := uint32(0); i < n; i++ {
		k, err := d.deserializeKey(keyKind)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, k)
	}
	return Value{Kind: kind, KeyKind: keyKind, Set: elems}, nil
}

// deserializeKey reads a raw, kind-byte-less key of the given primitive
// kind, the mirror of Serializer.serializeKey.
func (d *Deserializer) deserializeKey(keyKind ValueKind) (Value, error) {
	switch keyKind {
	case KindU8:
		b, ok := d.readByte()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return U8Value(b), nil
	case KindI8:
		b, ok := d.readByte()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return I8Value(int8(b)), nil
	case KindU16:
		v, ok := d.getUvarint16()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return U16Value(v), nil
	case KindI16:
		v, ok := d.getVarint16()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return I16Value(v), nil
	case KindU32:
		v, ok := d.getUvarint32()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return U32Value(v), nil
	case KindI32:
		v, ok := d.getVarint32()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return I32Value(v), nil
	case KindU64:
		v, ok := d.getUvarint()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return U64Value(v), nil
	case KindI64:
		v, ok := d.getVarint64()
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		return I64Value(v), nil
	case KindString:
		b, err := d.readLenPrefixed()
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(b)), nil
	case KindUuid:
		b, ok := d.readN(16)
		if !ok {
			return Value{}, ErrUnexpectedEoi
		}
		var u [16]byte
		copy(u[:], b)
		return Value{Kind: KindUuid, Uuid: u}, nil
	default:
		return Value{}, ErrInvalidSerialization
	}
}

func (d *Deserializer) readLenPrefixed() ([]byte, error) {
	n, ok := d.getUvarint32()
	if !ok {
		return nil, ErrUnexpectedEoi
	}
	b, ok := d.readN(int(n))
	if !ok {
		return nil, ErrUnexpectedEoi
	}
	return b, nil
}

// Skip discards one value without materializing it, advancing the
// cursor by exactly as many bytes as Deserialize would have consumed.
// It shares deserializeBody's traversal instead of duplicating it, so
// the two can never disagree about a value's length.
func (d *Deserializer) Skip() error {
	_, err := d.Deserialize()
	return err
}

// Len returns the number of elements a Vec1/Vec2/Bytes/Struct/map/set
// value at the current position contains, without retaining the
// decoded elements, then leaves the cursor past the whole value.
func (d *Deserializer) Len() (uint32, error) {
	kindByte, ok := d.readByte()
	if !ok {
		return 0, ErrUnexpectedEoi
	}
	kind := ValueKind(kindByte)
	if err := d.enter(kind); err != nil {
		return 0, err
	}
	defer d.leave(kind)

	switch kind {
	case KindBytes, KindString:
		n, ok := d.getUvarint32()
		if !ok {
			return 0, ErrUnexpectedEoi
		}
		if _, ok := d.readN(int(n)); !ok {
			return 0, ErrUnexpectedEoi
		}
		return n, nil
	case KindVec1, KindVec2:
		n, ok := d.getUvarint32()
		if !ok {
			return 0, ErrUnexpectedEoi
		}
		for i := uint32(0); i < n; i++ {
			if err := d.Skip(); err != nil {
				return 0, err
			}
		}
		return n, nil
	case KindStruct:
		n, ok := d.getUvarint32()
		if !ok {
			return 0, ErrUnexpectedEoi
		}
		for i := uint32(0); i < n; i++ {
			if _, ok := d.getUvarint32(); !ok {
				return 0, ErrUnexpectedEoi
			}
			if err := d.Skip(); err != nil {
				return 0, err
			}
		}
		return n, nil
	default:
		if isMapKind(kind) {
			keyKind := mapKeyKind(kind)
			n, ok := d.getUvarint32()
			if !ok {
				return 0, ErrUnexpectedEoi
			}
			for i := uint32(0); i < n; i++ {
				if _, err := d.deserializeKey(keyKind); err != nil {
					return 0, err
				}
				if err := d.Skip(); err != nil {
					return 0, err
				}
			}
			return n, nil
		}
		if isSetKind(kind) {
			keyKind := setKeyKind(kind)
			n, ok := d.getUvarint32()
			if !ok {
				return 0, ErrUnexpectedEoi
			}
			for i := uint32(0); i < n; i++ {
				if _, err := d.deserializeKey(keyKind); err != nil {
					return 0, err
				}
			}
			return n, nil
		}
		return 0, ErrUnexpectedValue
	}
}

func (d *Deserializer) getUvarint16() (uint16, bool) {
	v, n, ok := getUvarint16(d.buf[d.pos:])
	if !ok {
		return 0, false
	}
	d.pos += n
	return v, true
}

func (d *Deserializer) getVarint16() (int16, bool) {
	v, n, ok := getVarint16(d.buf[d.pos:])
	if !ok {
		return 0, false
	}
	d.pos += n
	return v, true
}

func (d *Deserializer) getUvarint32() (uint32, bool) {
	v, n, ok := getUvarint32(d.buf[d.pos:])
	if !ok {
		return 0, false
	}
	d.pos += n
	return v, true
}

func (d *Deserializer) getVarint32() (int32, bool) {
	v, n, ok := getVarint32(d.buf[d.pos:])
	if !ok {
		return 0, false
	}
	d.pos += n
	return v, true
}

func (d *Deserializer) getUvarint() (uint64, bool) {
	v, n, ok := getUvarint(d.buf[d.pos:])
	if !ok {
		return 0, false
	}
	d.pos += n
	return v, true
}

func (d *Deserializer) getVarint64() (int64, bool) {
	v, n, ok := getVarint64(d.buf[d.pos:])
	if !ok {
		return 0, false
	}
	d.pos += n
	return v, true
}

// Deserialize is a package-level convenience decoding exactly one Value
// from buf and erroring if trailing bytes remain.
func Deserialize(buf []byte) (Value, error) {
	d := NewDeserializer(buf)
	v, err := d.Deserialize()
	if err != nil {
		return Value{}, err
	}
	if d.Remaining() {
		return Value{}, ErrMoreElementsRemain
	}
	return v, nil
}
