// Package schemafile loads message schema definitions from a YAML file
// and registers them into a protocol registry before traffic flows.
package schemafile

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/kestrelnet/kestrel/pkg/protocol"
)

// File is the top-level shape of a schema definition file:
//
//	messages:
//	  - id: 1
//	    name: Echo
//	    args:
//	      - name: text
//	        type: string
type File struct {
	Messages []Message `yaml:"messages"`
}

// Message is one schema definition.
type Message struct {
	ID   uint16 `yaml:"id"`
	Name string `yaml:"name"`
	Args []Arg  `yaml:"args"`
}

// Arg is one typed argument slot.
type Arg struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Load parses a schema definition file into protocol schemas.
func Load(path string) ([]*protocol.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read schema file failed")
	}
	return Parse(data)
}

// Parse parses schema definitions from YAML bytes.
func Parse(data []byte) ([]*protocol.Schema, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse schema file failed")
	}

	schemas := make([]*protocol.Schema, 0, len(f.Messages))
	for _, m := range f.Messages {
		s := &protocol.Schema{
			ID:    m.ID,
			Name:  m.Name,
			Slots: make([]protocol.ArgSlot, 0, len(m.Args)),
		}
		for _, a := range m.Args {
			tag, ok := protocol.TagByName(a.Type)
			if !ok {
				return nil, errors.Errorf("schema %s: arg %s: unknown type %q", m.Name, a.Name, a.Type)
			}
			s.Slots = append(s.Slots, protocol.ArgSlot{Name: a.Name, Tag: tag})
		}
		schemas = append(schemas, s)
	}
	return schemas, nil
}

// Register loads a schema file and registers every schema it defines.
func Register(reg *protocol.Registry, path string) error {
	schemas, err := Load(path)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		if err := reg.Register(s); err != nil {
			return errors.Wrapf(err, "register schema %s failed", s.Name)
		}
	}
	return nil
}
