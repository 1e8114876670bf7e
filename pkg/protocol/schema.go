package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateSchema = errors.New("duplicate schema")
	ErrUnknownSchema   = errors.New("unknown schema")
	ErrReservedID      = errors.New("schema id is reserved")
	ErrInvalidSchema   = errors.New("invalid schema")
)

// ArgSlot declares one typed argument of a schema.
type ArgSlot struct {
	Name string
	Tag  TypeTag
}

// Schema binds a stable numeric id and a unique name to an ordered list
// of typed argument slots. Immutable once registered.
type Schema struct {
	ID    uint16
	Name  string
	Slots []ArgSlot
}

// SlotIndex returns the position of the named slot, or -1.
func (s *Schema) SlotIndex(name string) int {
	for i := range s.Slots {
		if s.Slots[i].Name == name {
			return i
		}
	}
	return -1
}

func (s *Schema) validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSchema)
	}
	seen := make(map[string]bool, len(s.Slots))
	for _, slot := range s.Slots {
		if slot.Name == "" {
			return fmt.Errorf("%w: %s: empty slot name", ErrInvalidSchema, s.Name)
		}
		if seen[slot.Name] {
			return fmt.Errorf("%w: %s: duplicate slot %q", ErrInvalidSchema, s.Name, slot.Name)
		}
		seen[slot.Name] = true
		if !slot.Tag.Valid() {
			return fmt.Errorf("%w: %s: slot %q: bad tag 0x%02x", ErrInvalidSchema, s.Name, slot.Name, uint8(slot.Tag))
		}
	}
	return nil
}

// Registry maps schema ids and names to schemas. A registry is an
// explicit instance; the framework never keeps a process-wide one.
// Registration happens at bootstrap, lookups are lock-free afterwards.
type Registry struct {
	byID   map[uint16]*Schema
	byName map[string]*Schema
}

// NewRegistry creates a registry pre-loaded with the reserved framework
// schemas (handshake, ping, invalid-message).
func NewRegistry() *Registry {
	r := &Registry{
		byID:   make(map[uint16]*Schema),
		byName: make(map[string]*Schema),
	}
	r.registerReserved()
	return r
}

func (r *Registry) registerReserved() {
	reserved := []*Schema{
		{ID: IDHandshakeKey, Name: NameHandshakeKey, Slots: []ArgSlot{
			{Name: "publicKey", Tag: TagBytes},
		}},
		{ID: IDSessionKey, Name: NameSessionKey, Slots: []ArgSlot{
			{Name: "wrappedKey", Tag: TagBytes},
		}},
		{ID: IDPingRequest, Name: NamePingRequest, Slots: []ArgSlot{
			{Name: "sentAt", Tag: TagInt64},
		}},
		{ID: IDPingResponse, Name: NamePingResponse, Slots: []ArgSlot{
			{Name: "sentAt", Tag: TagInt64},
		}},
		{ID: IDInvalidMessage, Name: NameInvalidMessage, Slots: []ArgSlot{
			{Name: "id", Tag: TagInt32},
			{Name: "name", Tag: TagString},
		}},
	}
	for _, s := range reserved {
		r.byID[s.ID] = s
		r.byName[s.Name] = s
	}
}

// Register adds an application schema. The id must be below the reserved
// range and both id and name must be unused.
func (r *Registry) Register(s *Schema) error {
	if err := s.validate(); err != nil {
		return err
	}
	if s.ID >= ReservedIDBase {
		return fmt.Errorf("%w: 0x%04x (%s)", ErrReservedID, s.ID, s.Name)
	}
	if _, ok := r.byID[s.ID]; ok {
		return fmt.Errorf("%w: id %d", ErrDuplicateSchema, s.ID)
	}
	if _, ok := r.byName[s.Name]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateSchema, s.Name)
	}
	r.byID[s.ID] = s
	r.byName[s.Name] = s
	return nil
}

// ByID returns the schema registered under id.
func (r *Registry) ByID(id uint16) (*Schema, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrUnknownSchema, id)
	}
	return s, nil
}

// ByName returns the schema registered under name.
func (r *Registry) ByName(name string) (*Schema, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: name %q", ErrUnknownSchema, name)
	}
	return s, nil
}

// NewEnvelope builds an envelope for the named schema with all slots
// unset.
func (r *Registry) NewEnvelope(name string) (*Envelope, error) {
	s, err := r.ByName(name)
	if err != nil {
		return nil, err
	}
	return newEnvelope(s), nil
}
