package protocol

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/annel0/voxelworld/internal/vec"
)

var (
	// ErrMalformed сообщение не разбирается
	ErrMalformed = errors.New("повреждённое сообщение")
	// ErrUnknownCommand номер команды не известен
	ErrUnknownCommand = errors.New("неизвестная команда")
)

// encoder дописывает поля в буфер
type encoder struct {
	b []byte
}

func (e *encoder) uint(num protowire.Number, v uint64) {
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) sint(num protowire.Number, v int64) {
	e.uint(num, protowire.EncodeZigZag(v))
}

func (e *encoder) float(num protowire.Number, v float32) {
	e.b = protowire.AppendTag(e.b, num, protowire.Fixed32Type)
	e.b = protowire.AppendFixed32(e.b, math.Float32bits(v))
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

func (e *encoder) string(num protowire.Number, v string) {
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

func (e *encoder) vec(num protowire.Number, v vec.Vec3) {
	var inner encoder
	inner.sint(1, int64(v.X))
	inner.sint(2, int64(v.Y))
	inner.sint(3, int64(v.Z))
	e.bytes(num, inner.b)
}

func (e *encoder) vecf(num protowire.Number, v mgl32.Vec3) {
	var inner encoder
	inner.float(1, v.X())
	inner.float(2, v.Y())
	inner.float(3, v.Z())
	e.bytes(num, inner.b)
}

// field одно разобранное поле
type field struct {
	num     protowire.Number
	typ     protowire.Type
	varint  uint64
	fixed32 uint32
	data    []byte
}

// readFields разбирает все поля сообщения. Неизвестные номера не
// ошибка, их просто пропускает получатель.
func readFields(b []byte) ([]field, error) {
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.BytesType:
			f.data, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: поле %d: %v", ErrMalformed, num, protowire.ParseError(n))
		}
		b = b[n:]
		out = append(out, f)
	}
	return out, nil
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("%w: поле %d имеет тип %d", ErrMalformed, f.num, f.typ)
	}
	return nil
}

func (f field) uint() (uint64, error) {
	return f.varint, f.expect(protowire.VarintType)
}

func (f field) sint() (int64, error) {
	return protowire.DecodeZigZag(f.varint), f.expect(protowire.VarintType)
}

func (f field) float() (float32, error) {
	return math.Float32frombits(f.fixed32), f.expect(protowire.Fixed32Type)
}

func (f field) bytes() ([]byte, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	// Копия: буфер пакета может переиспользоваться транспортом
	return append([]byte(nil), f.data...), nil
}

func (f field) string() (string, error) {
	return string(f.data), f.expect(protowire.BytesType)
}

func (f field) vec() (vec.Vec3, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return vec.Zero, err
	}
	fields, err := readFields(f.data)
	if err != nil {
		return vec.Zero, err
	}
	var v vec.Vec3
	for _, c := range fields {
		x, err := c.sint()
		if err != nil {
			return vec.Zero, err
		}
		switch c.num {
		case 1:
			v.X = int(x)
		case 2:
			v.Y = int(x)
		case 3:
			v.Z = int(x)
		}
	}
	return v, nil
}

func (f field) vecf() (mgl32.Vec3, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return mgl32.Vec3{}, err
	}
	fields, err := readFields(f.data)
	if err != nil {
		return mgl32.Vec3{}, err
	}
	var v mgl32.Vec3
	for _, c := range fields {
		x, err := c.float()
		if err != nil {
			return mgl32.Vec3{}, err
		}
		if c.num >= 1 && c.num <= 3 {
			v[c.num-1] = x
		}
	}
	return v, nil
}
