package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrTruncated      = errors.New("truncated envelope")
	ErrTagMismatch    = errors.New("wire tag does not match schema")
	ErrArgCount       = errors.New("argument count does not match schema")
	ErrValueTooLarge  = errors.New("value exceeds length prefix")
	ErrIncompleteArgs = errors.New("envelope has unset arguments")
)

// Encode serializes the envelope, big-endian:
//
//	u16 id, u16 argCount, argCount x (u8 tag, value bytes)
//
// Strings and byte arrays carry a u16 length prefix; arrays carry a u16
// element count. Every slot must be set.
func Encode(e *Envelope) ([]byte, error) {
	if !e.Complete() {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteArgs, e.schema.Name)
	}

	buf := make([]byte, 4, 64)
	binary.BigEndian.PutUint16(buf[0:2], e.schema.ID)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(e.schema.Slots)))

	for i, slot := range e.schema.Slots {
		buf = append(buf, byte(slot.Tag))
		var err error
		buf, err = appendValue(buf, slot.Tag, e.values[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.schema.Name, slot.Name, err)
		}
	}
	return buf, nil
}

// Decode parses an envelope against the registry. An unregistered id
// does not fail: it yields an InvalidMessage envelope carrying the
// offending id, so callers can answer the peer. Structural damage
// (truncation, tag mismatch) is an error.
func Decode(r *Registry, buf []byte) (*Envelope, error) {
	if len(buf) < 4 {
		return nil, ErrTruncated
	}
	id := binary.BigEndian.Uint16(buf[0:2])
	argCount := int(binary.BigEndian.Uint16(buf[2:4]))

	schema, err := r.ByID(id)
	if err != nil {
		return InvalidFor(r, id, ""), nil
	}
	if argCount != len(schema.Slots) {
		return nil, fmt.Errorf("%w: %s: wire %d, schema %d",
			ErrArgCount, schema.Name, argCount, len(schema.Slots))
	}

	e := newEnvelope(schema)
	off := 4
	for i, slot := range schema.Slots {
		if off >= len(buf) {
			return nil, fmt.Errorf("%w: %s.%s", ErrTruncated, schema.Name, slot.Name)
		}
		tag := TypeTag(buf[off])
		off++
		if tag != slot.Tag {
			return nil, fmt.Errorf("%w: %s.%s: wire %s, schema %s",
				ErrTagMismatch, schema.Name, slot.Name, tag, slot.Tag)
		}
		v, n, err := readValue(tag, buf[off:])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", schema.Name, slot.Name, err)
		}
		off += n
		e.values[i] = v
		e.set[i] = true
	}
	return e, nil
}

// InvalidFor builds the sentinel envelope answered for an unrecognized
// message id. The name is best-effort and may be empty.
func InvalidFor(r *Registry, id uint16, name string) *Envelope {
	e, _ := r.NewEnvelope(NameInvalidMessage)
	_ = e.Set("id", int32(id))
	_ = e.Set("name", name)
	e.invalid = true
	return e
}

func appendValue(buf []byte, tag TypeTag, v any) ([]byte, error) {
	if tag.IsArray() {
		return appendArray(buf, tag, v)
	}
	switch tag {
	case TagBool:
		if v.(bool) {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil
	case TagInt16:
		return binary.BigEndian.AppendUint16(buf, uint16(v.(int16))), nil
	case TagInt32:
		return binary.BigEndian.AppendUint32(buf, uint32(v.(int32))), nil
	case TagInt64:
		return binary.BigEndian.AppendUint64(buf, uint64(v.(int64))), nil
	case TagFloat32:
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(v.(float32))), nil
	case TagFloat64:
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(v.(float64))), nil
	case TagString:
		s := v.(string)
		if len(s) > math.MaxUint16 {
			return nil, ErrValueTooLarge
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
		return append(buf, s...), nil
	case TagBytes:
		b := v.([]byte)
		if len(b) > math.MaxUint16 {
			return nil, ErrValueTooLarge
		}
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(b)))
		return append(buf, b...), nil
	}
	return nil, fmt.Errorf("unencodable tag %s", tag)
}

func appendArray(buf []byte, tag TypeTag, v any) ([]byte, error) {
	var n int
	switch tag.Elem() {
	case TagBool:
		n = len(v.([]bool))
	case TagInt16:
		n = len(v.([]int16))
	case TagInt32:
		n = len(v.([]int32))
	case TagInt64:
		n = len(v.([]int64))
	case TagFloat32:
		n = len(v.([]float32))
	case TagFloat64:
		n = len(v.([]float64))
	default:
		return nil, fmt.Errorf("unencodable tag %s", tag)
	}
	if n > math.MaxUint16 {
		return nil, ErrValueTooLarge
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(n))

	switch elems := v.(type) {
	case []bool:
		for _, b := range elems {
			if b {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	case []int16:
		for _, e := range elems {
			buf = binary.BigEndian.AppendUint16(buf, uint16(e))
		}
	case []int32:
		for _, e := range elems {
			buf = binary.BigEndian.AppendUint32(buf, uint32(e))
		}
	case []int64:
		for _, e := range elems {
			buf = binary.BigEndian.AppendUint64(buf, uint64(e))
		}
	case []float32:
		for _, e := range elems {
			buf = binary.BigEndian.AppendUint32(buf, math.Float32bits(e))
		}
	case []float64:
		for _, e := range elems {
			buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(e))
		}
	}
	return buf, nil
}

func readValue(tag TypeTag, buf []byte) (any, int, error) {
	if tag.IsArray() {
		return readArray(tag, buf)
	}
	switch tag {
	case TagBool:
		if len(buf) < 1 {
			return nil, 0, ErrTruncated
		}
		return buf[0] != 0, 1, nil
	case TagInt16:
		if len(buf) < 2 {
			return nil, 0, ErrTruncated
		}
		return int16(binary.BigEndian.Uint16(buf)), 2, nil
	case TagInt32:
		if len(buf) < 4 {
			return nil, 0, ErrTruncated
		}
		return int32(binary.BigEndian.Uint32(buf)), 4, nil
	case TagInt64:
		if len(buf) < 8 {
			return nil, 0, ErrTruncated
		}
		return int64(binary.BigEndian.Uint64(buf)), 8, nil
	case TagFloat32:
		if len(buf) < 4 {
			return nil, 0, ErrTruncated
		}
		return math.Float32frombits(binary.BigEndian.Uint32(buf)), 4, nil
	case TagFloat64:
		if len(buf) < 8 {
			return nil, 0, ErrTruncated
		}
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), 8, nil
	case TagString:
		n, err := readLen(buf)
		if err != nil {
			return nil, 0, err
		}
		return string(buf[2 : 2+n]), 2 + n, nil
	case TagBytes:
		n, err := readLen(buf)
		if err != nil {
			return nil, 0, err
		}
		b := make([]byte, n)
		copy(b, buf[2:2+n])
		return b, 2 + n, nil
	}
	return nil, 0, fmt.Errorf("undecodable tag %s", tag)
}

func readArray(tag TypeTag, buf []byte) (any, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrTruncated
	}
	count := int(binary.BigEndian.Uint16(buf))
	off := 2

	var elemSize int
	switch tag.Elem() {
	case TagBool:
		elemSize = 1
	case TagInt16:
		elemSize = 2
	case TagInt32, TagFloat32:
		elemSize = 4
	case TagInt64, TagFloat64:
		elemSize = 8
	default:
		return nil, 0, fmt.Errorf("undecodable tag %s", tag)
	}
	if len(buf) < off+count*elemSize {
		return nil, 0, ErrTruncated
	}

	switch tag.Elem() {
	case TagBool:
		out := make([]bool, count)
		for i := range out {
			out[i] = buf[off+i] != 0
		}
		return out, off + count, nil
	case TagInt16:
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(binary.BigEndian.Uint16(buf[off+i*2:]))
		}
		return out, off + count*2, nil
	case TagInt32:
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(binary.BigEndian.Uint32(buf[off+i*4:]))
		}
		return out, off + count*4, nil
	case TagInt64:
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(binary.BigEndian.Uint64(buf[off+i*8:]))
		}
		return out, off + count*8, nil
	case TagFloat32:
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[off+i*4:]))
		}
		return out, off + count*4, nil
	default:
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(buf[off+i*8:]))
		}
		return out, off + count*8, nil
	}
}

func readLen(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, ErrTruncated
	}
	n := int(binary.BigEndian.Uint16(buf))
	if len(buf) < 2+n {
		return 0, ErrValueTooLarge
	}
	return n, nil
}
