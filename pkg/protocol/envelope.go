package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownArgument = errors.New("unknown argument")
	ErrArgumentType    = errors.New("argument type mismatch")
	ErrArgumentUnset   = errors.New("argument not set")
)

// Envelope is one decoded or under-construction protocol message: a
// schema reference plus argument values aligned to the schema's slots.
type Envelope struct {
	schema  *Schema
	values  []any
	set     []bool
	invalid bool
}

func newEnvelope(s *Schema) *Envelope {
	return &Envelope{
		schema: s,
		values: make([]any, len(s.Slots)),
		set:    make([]bool, len(s.Slots)),
	}
}

// Invalid reports whether this envelope is the decoder's sentinel for an
// unrecognized wire id, as opposed to an InvalidMessage the peer sent.
func (e *Envelope) Invalid() bool {
	return e.invalid
}

// Schema returns the envelope's schema.
func (e *Envelope) Schema() *Schema {
	return e.schema
}

// ID returns the schema id.
func (e *Envelope) ID() uint16 {
	return e.schema.ID
}

// Name returns the schema name.
func (e *Envelope) Name() string {
	return e.schema.Name
}

// Set assigns a value to the named slot. The Go type of v must match the
// slot's declared tag exactly; no coercion is performed.
func (e *Envelope) Set(name string, v any) error {
	i := e.schema.SlotIndex(name)
	if i < 0 {
		return fmt.Errorf("%w: %s.%s", ErrUnknownArgument, e.schema.Name, name)
	}
	tag := e.schema.Slots[i].Tag
	if !valueMatches(tag, v) {
		return fmt.Errorf("%w: %s.%s wants %s, got %T",
			ErrArgumentType, e.schema.Name, name, tag, v)
	}
	e.values[i] = v
	e.set[i] = true
	return nil
}

// Get returns the value of the named slot.
func (e *Envelope) Get(name string) (any, error) {
	i := e.schema.SlotIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownArgument, e.schema.Name, name)
	}
	if !e.set[i] {
		return nil, fmt.Errorf("%w: %s.%s", ErrArgumentUnset, e.schema.Name, name)
	}
	return e.values[i], nil
}

// Complete reports whether every slot has been assigned.
func (e *Envelope) Complete() bool {
	for _, ok := range e.set {
		if !ok {
			return false
		}
	}
	return true
}

// Typed accessors. Each fails with ErrArgumentType if the slot holds a
// different wire type.

func (e *Envelope) Bool(name string) (bool, error) {
	v, err := e.Get(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, typedErr(e, name, "bool", v)
	}
	return b, nil
}

func (e *Envelope) Int16(name string) (int16, error) {
	v, err := e.Get(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int16)
	if !ok {
		return 0, typedErr(e, name, "int16", v)
	}
	return n, nil
}

func (e *Envelope) Int32(name string) (int32, error) {
	v, err := e.Get(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int32)
	if !ok {
		return 0, typedErr(e, name, "int32", v)
	}
	return n, nil
}

func (e *Envelope) Int64(name string) (int64, error) {
	v, err := e.Get(name)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, typedErr(e, name, "int64", v)
	}
	return n, nil
}

func (e *Envelope) Float64(name string) (float64, error) {
	v, err := e.Get(name)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, typedErr(e, name, "float64", v)
	}
	return f, nil
}

func (e *Envelope) String(name string) (string, error) {
	v, err := e.Get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", typedErr(e, name, "string", v)
	}
	return s, nil
}

func (e *Envelope) Bytes(name string) ([]byte, error) {
	v, err := e.Get(name)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, typedErr(e, name, "bytes", v)
	}
	return b, nil
}

func typedErr(e *Envelope, name, want string, got any) error {
	return fmt.Errorf("%w: %s.%s wants %s, got %T", ErrArgumentType, e.schema.Name, name, want, got)
}

// valueMatches checks the Go representation of one wire type.
func valueMatches(tag TypeTag, v any) bool {
	if tag.IsArray() {
		switch tag.Elem() {
		case TagBool:
			_, ok := v.([]bool)
			return ok
		case TagInt16:
			_, ok := v.([]int16)
			return ok
		case TagInt32:
			_, ok := v.([]int32)
			return ok
		case TagInt64:
			_, ok := v.([]int64)
			return ok
		case TagFloat32:
			_, ok := v.([]float32)
			return ok
		case TagFloat64:
			_, ok := v.([]float64)
			return ok
		}
		return false
	}
	switch tag {
	case TagBool:
		_, ok := v.(bool)
		return ok
	case TagInt16:
		_, ok := v.(int16)
		return ok
	case TagInt32:
		_, ok := v.(int32)
		return ok
	case TagInt64:
		_, ok := v.(int64)
		return ok
	case TagFloat32:
		_, ok := v.(float32)
		return ok
	case TagFloat64:
		_, ok := v.(float64)
		return ok
	case TagString:
		_, ok := v.(string)
		return ok
	case TagBytes:
		_, ok := v.([]byte)
		return ok
	}
	return false
}
