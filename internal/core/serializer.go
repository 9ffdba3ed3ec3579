package core

import "math"

// Serializer encodes Values into a flat byte buffer. It is a thin
// append-only cursor; callers serialize one top-level Value (the
// message body) at a time.
type Serializer struct {
	buf   []byte
	depth int
}

// NewSerializer returns a Serializer writing into a fresh buffer.
func NewSerializer() *Serializer {
	return &Serializer{buf: make([]byte, 0, 64)}
}

// Bytes returns the accumulated encoding.
func (s *Serializer) Bytes() []byte { return s.buf }

func (s *Serializer) pushByte(b byte) { s.buf = append(s.buf, b) }

func (s *Serializer) pushBytes(b []byte) { s.buf = append(s.buf, b...) }

// Serialize appends the encoding of v, returning ErrTooDeeplyNested if
// v's container nesting exceeds MaxValueDepth.
func (s *Serializer) Serialize(v Value) error {
	if isContainerKind(v.Kind) {
		s.depth++
		if s.depth > MaxValueDepth {
			s.depth--
			return ErrTooDeeplyNested
		}
		defer func() { s.depth-- }()
	}

	s.pushByte(byte(v.Kind))

	switch v.Kind {
	case KindNone:
	case KindSome:
		if v.Some == nil {
			return ErrUnexpectedValue
		}
		return s.Serialize(*v.Some)
	case KindBool:
		if v.Bool {
			s.pushByte(1)
		} else {
			s.pushByte(0)
		}
	case KindU8:
		s.pushByte(v.U8)
	case KindI8:
		s.pushByte(byte(v.I8))
	case KindU16:
		s.buf = putUvarint16(s.buf, v.U16)
	case KindI16:
		s.buf = putVarint16(s.buf, v.I16)
	case KindU32:
		s.buf = putUvarint32(s.buf, v.U32)
	case KindI32:
		s.buf = putVarint32(s.buf, v.I32)
	case KindU64:
		s.buf = putUvarint(s.buf, v.U64)
	case KindI64:
		s.buf = putVarint64(s.buf, v.I64)
	case KindF32:
		s.pushBytes(f32Bytes(v.F32))
	case KindF64:
		s.pushBytes(f64Bytes(v.F64))
	case KindString:
		s.writeLenPrefixed([]byte(v.String))
	case KindUuid:
		s.pushBytes(v.Uuid[:])
	case KindObjectId:
		s.pushBytes(v.ObjectId.Uuid[:])
		s.pushBytes(v.ObjectId.Cookie[:])
	case KindServiceId:
		s.pushBytes(v.ServiceId.Object.Uuid[:])
		s.pushBytes(v.ServiceId.Object.Cookie[:])
		s.pushBytes(v.ServiceId.Uuid[:])
		s.pushBytes(v.ServiceId.Cookie[:])
	case KindVec1, KindVec2:
		s.buf = putUvarint32(s.buf, uint32(len(v.Vec)))
		for _, e := range v.Vec {
			if err := s.Serialize(e); err != nil {
				return err
			}
		}
	case KindBytes:
		s.writeLenPrefixed(v.Bytes)
	case KindStruct:
		s.buf = putUvarint32(s.buf, uint32(len(v.Struct)))
		for _, f := range v.Struct {
			s.buf = putUvarint32(s.buf, f.Id)
			if err := s.Serialize(f.Value); err != nil {
				return err
			}
		}
	case KindEnum:
		s.buf = putUvarint32(s.buf, v.EnumVariant)
		if v.EnumValue == nil {
			return s.Serialize(None)
		}
		return s.Serialize(*v.EnumValue)
	case KindSender:
		s.pushBytes(v.Sender[:])
	case KindReceiver:
		s.pushBytes(v.Receiver[:])
	default:
		if isMapKind(v.Kind) {
			s.buf = putUvarint32(s.buf, uint32(len(v.Map)))
			for _, e := range v.Map {
				if err := s.serializeKey(e.Key); err != nil {
					return err
				}
				if err := s.Serialize(e.Value); err != nil {
					return err
				}
			}
			return nil
		}
		if isSetKind(v.Kind) {
			s.buf = putUvarint32(s.buf, uint32(len(v.Set)))
			for _, e := range v.Set {
				if err := s.serializeKey(e); err != nil {
					return err
				}
			}
			return nil
		}
		return ErrUnexpectedValue
	}
	return nil
}

// serializeKey writes a map/set key's raw encoding without its kind
// byte, since the map/set discriminant already names the key kind.
func (s *Serializer) serializeKey(k Value) error {
	switch k.Kind {
	case KindU8:
		s.pushByte(k.U8)
	case KindI8:
		s.pushByte(byte(k.I8))
	case KindU16:
		s.buf = putUvarint16(s.buf, k.U16)
	case KindI16:
		s.buf = putVarint16(s.buf, k.I16)
	case KindU32:
		s.buf = putUvarint32(s.buf, k.U32)
	case KindI32:
		s.buf = putVarint32(s.buf, k.I32)
	case KindU64:
		s.buf = putUvarint(s.buf, k.U64)
	case KindI64:
		s.buf = putVarint64(s.buf, k.I64)
	case KindString:
		s.writeLenPrefixed([]byte(k.String))
	case KindUuid:
		s.pushBytes(k.Uuid[:])
	default:
		return ErrUnexpectedValue
	}
	return nil
}

func (s *Serializer) writeLenPrefixed(b []byte) {
	s.buf = putUvarint32(s.buf, uint32(len(b)))
	s.pushBytes(b)
}

func f32Bytes(f float32) []byte {
	bits := math.Float32bits(f)
	return []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
}

func f64Bytes(f float64) []byte {
	bits := math.Float64bits(f)
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * i))
	}
	return b
}

// Serialize is a package-level convenience that encodes v into a fresh
// buffer.
func Serialize(v Value) ([]byte, error) {
	s := NewSerializer()
	if err := s.Serialize(v); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}
