package packet

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Serialize validates rec against s and encodes it: the structured fields in
// Avro binary encoding, in declaration order, followed by the cutout trailer.
// The trailer is a long count and, per cutout, its name as a string and its
// payload as bytes.
func Serialize(rec AlertRecord, s *Schema) ([]byte, error) {
	if err := Validate(rec, s); err != nil {
		return nil, err
	}

	body, err := s.codec.BinaryFromNative(make([]byte, 0, 1024), toNative(s.root, rec.Fields))
	if err != nil {
		return nil, errors.Wrap(ErrEncoding, err.Error())
	}

	e := &encoder{buf: body}
	e.writeLong(int64(len(rec.Cutouts)))
	for _, c := range rec.Cutouts {
		e.writeString(c.Name)
		e.writeBytes(c.Data)
	}

	return e.buf, nil
}

// Deserialize decodes data written under r's writer schema into a record
// shaped after r's reader schema.
func Deserialize(data []byte, r *ResolvedSchema) (AlertRecord, error) {
	d := &decoder{buf: data}

	v, err := r.root.read(d)
	if err != nil {
		return AlertRecord{}, err
	}
	rec := AlertRecord{Fields: v.(map[string]interface{})}

	n, err := d.readLong()
	if err != nil {
		return AlertRecord{}, errors.WithMessage(err, "cutout count")
	}
	if n < 0 {
		return AlertRecord{}, errors.Wrapf(ErrMalformedData, "negative cutout count %d", n)
	}
	for i := int64(0); i < n; i++ {
		name, err := d.readString()
		if err != nil {
			return AlertRecord{}, errors.WithMessagef(err, "cutout %d", i)
		}
		payload, err := d.readBytes()
		if err != nil {
			return AlertRecord{}, errors.WithMessagef(err, "cutout %s", name)
		}
		rec.Cutouts = append(rec.Cutouts, Cutout{Name: name, Data: payload})
	}

	if d.remaining() > 0 {
		return AlertRecord{}, errors.Wrapf(ErrMalformedData, "%d trailing bytes", d.remaining())
	}

	return rec, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) writeLong(v int64) {
	e.buf = binary.AppendUvarint(e.buf, uint64((v<<1)^(v>>63)))
}

func (e *encoder) writeBytes(b []byte) {
	e.writeLong(int64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) writeString(s string) {
	e.writeLong(int64(len(s)))
	e.buf = append(e.buf, s...)
}

type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.pos
}

func (d *decoder) readLong() (int64, error) {
	var u uint64
	for shift := uint(0); ; shift += 7 {
		if shift >= 64 {
			return 0, errors.Wrap(ErrMalformedData, "varint overflows a long")
		}
		if d.pos >= len(d.buf) {
			return 0, ErrTruncatedData
		}
		b := d.buf[d.pos]
		d.pos++
		u |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
	}
	return int64(u>>1) ^ -int64(u&1), nil
}

func (d *decoder) readInt() (int32, error) {
	v, err := d.readLong()
	if err != nil {
		return 0, err
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, errors.Wrapf(ErrMalformedData, "%d overflows an int", v)
	}
	return int32(v), nil
}

func (d *decoder) next(n int) ([]byte, error) {
	if d.remaining() < n {
		return nil, ErrTruncatedData
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readBoolean() (bool, error) {
	b, err := d.next(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, errors.Wrapf(ErrMalformedData, "invalid boolean byte %#x", b[0])
}

func (d *decoder) readFloat() (float32, error) {
	b, err := d.next(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (d *decoder) readDouble() (float64, error) {
	b, err := d.next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (d *decoder) readBytes() ([]byte, error) {
	n, err := d.readLong()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, errors.Wrapf(ErrMalformedData, "negative length %d", n)
	}
	if int64(d.remaining()) < n {
		return nil, ErrTruncatedData
	}
	b, _ := d.next(int(n))
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (d *decoder) readString() (string, error) {
	b, err := d.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readPrimitive reads a value of kind k as written.
func (d *decoder) readPrimitive(k Kind) (interface{}, error) {
	switch k {
	case Null:
		return nil, nil
	case Boolean:
		return d.readBoolean()
	case Int:
		return d.readInt()
	case Long:
		return d.readLong()
	case Float:
		return d.readFloat()
	case Double:
		return d.readDouble()
	case Bytes:
		return d.readBytes()
	case String:
		return d.readString()
	}
	return nil, errors.Wrapf(ErrMalformedData, "cannot read kind %s", k)
}

// maxEmptyItems bounds arrays whose items take no bytes on the wire.
const maxEmptyItems = 1 << 20

// blockCount reads the item count of the next array block. A negative count
// is followed by the block size in bytes, which is not needed here. Counts
// that the remaining bytes cannot hold are rejected, given that every item
// takes at least minItem bytes and read items have been read already.
func (d *decoder) blockCount(minItem int, read int64) (int64, error) {
	n, err := d.readLong()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		if _, err := d.readLong(); err != nil {
			return 0, err
		}
		n = -n
		if n < 0 {
			return 0, errors.Wrapf(ErrMalformedData, "invalid block count %d", n)
		}
	}

	if minItem > 0 {
		if n > int64(d.remaining()/minItem) {
			return 0, errors.Wrapf(ErrTruncatedData, "block of %d items in %d bytes", n, d.remaining())
		}
	} else if n > maxEmptyItems-read {
		return 0, errors.Wrapf(ErrMalformedData, "more than %d empty items", maxEmptyItems)
	}
	return n, nil
}

// minSize returns the least number of bytes a value of t takes.
func minSize(t Type) int {
	switch t := t.(type) {
	case *PrimitiveType:
		switch t.kind {
		case Null:
			return 0
		case Float:
			return 4
		case Double:
			return 8
		}
	case *RecordType:
		n := 0
		for _, f := range t.Fields {
			n += minSize(f.Type)
		}
		return n
	}
	return 1
}

// skip reads and discards a value of writer type t.
func (d *decoder) skip(t Type) error {
	switch t := t.(type) {
	case *PrimitiveType:
		_, err := d.readPrimitive(t.kind)
		return err

	case *EnumType:
		_, err := d.readLong()
		return err

	case *ArrayType:
		minItem := minSize(t.Items)
		for read := int64(0); ; {
			n, err := d.blockCount(minItem, read)
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			for i := int64(0); i < n; i++ {
				if err := d.skip(t.Items); err != nil {
					return err
				}
			}
			read += n
		}

	case *RecordType:
		for _, f := range t.Fields {
			if err := d.skip(f.Type); err != nil {
				return errors.WithMessage(err, f.Name)
			}
		}
		return nil

	case *UnionType:
		i, err := d.readLong()
		if err != nil {
			return err
		}
		if i < 0 || i >= int64(len(t.Branches)) {
			return errors.Wrapf(ErrMalformedUnion, "branch %d of %d", i, len(t.Branches))
		}
		return d.skip(t.Branches[i])
	}

	return errors.Wrapf(ErrMalformedData, "cannot skip %T", t)
}
