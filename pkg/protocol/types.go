package protocol

import "fmt"

// Type tags for argument slots. The high bit marks an array of the
// underlying scalar type.
const (
	TagBool    TypeTag = 0x01
	TagInt16   TypeTag = 0x02
	TagInt32   TypeTag = 0x03
	TagInt64   TypeTag = 0x04
	TagFloat32 TypeTag = 0x05
	TagFloat64 TypeTag = 0x06
	TagString  TypeTag = 0x07
	TagBytes   TypeTag = 0x08

	// TagArray is OR-ed with a scalar tag to form an array type.
	TagArray TypeTag = 0x80
)

// Reserved message ids (0xFF00 and above). Application schemas must stay
// below ReservedIDBase.
const (
	ReservedIDBase uint16 = 0xFF00

	IDHandshakeKey   uint16 = 0xFF00
	IDSessionKey     uint16 = 0xFF01
	IDPingRequest    uint16 = 0xFF02
	IDPingResponse   uint16 = 0xFF03
	IDInvalidMessage uint16 = 0xFFFF
)

// Reserved message names.
const (
	NameHandshakeKey   = "HandshakeKey"
	NameSessionKey     = "SessionKey"
	NamePingRequest    = "PingRequest"
	NamePingResponse   = "PingResponse"
	NameInvalidMessage = "InvalidMessage"
)

// TypeTag identifies the wire type of one argument slot.
type TypeTag uint8

// Elem returns the scalar tag of an array type. For scalar tags it
// returns the tag itself.
func (t TypeTag) Elem() TypeTag {
	return t &^ TagArray
}

// IsArray reports whether the tag is an array type.
func (t TypeTag) IsArray() bool {
	return t&TagArray != 0
}

// Valid reports whether the tag names a known wire type. Arrays of
// arrays and arrays of strings/bytes are not representable.
func (t TypeTag) Valid() bool {
	e := t.Elem()
	if e < TagBool || e > TagBytes {
		return false
	}
	if t.IsArray() && (e == TagString || e == TagBytes) {
		return false
	}
	return true
}

// String returns a readable name for the tag.
func (t TypeTag) String() string {
	var s string
	switch t.Elem() {
	case TagBool:
		s = "bool"
	case TagInt16:
		s = "int16"
	case TagInt32:
		s = "int32"
	case TagInt64:
		s = "int64"
	case TagFloat32:
		s = "float32"
	case TagFloat64:
		s = "float64"
	case TagString:
		s = "string"
	case TagBytes:
		s = "bytes"
	default:
		return fmt.Sprintf("tag(0x%02x)", uint8(t))
	}
	if t.IsArray() {
		return "[]" + s
	}
	return s
}

// TagByName resolves a tag from its readable name. Used by schema file
// loaders.
func TagByName(name string) (TypeTag, bool) {
	array := false
	if len(name) > 2 && name[:2] == "[]" {
		array = true
		name = name[2:]
	}
	var t TypeTag
	switch name {
	case "bool":
		t = TagBool
	case "int16":
		t = TagInt16
	case "int32":
		t = TagInt32
	case "int64":
		t = TagInt64
	case "float32":
		t = TagFloat32
	case "float64":
		t = TagFloat64
	case "string":
		t = TagString
	case "bytes":
		t = TagBytes
	default:
		return 0, false
	}
	if array {
		t |= TagArray
	}
	if !t.Valid() {
		return 0, false
	}
	return t, true
}
