package schema

import (
	"fmt"
	"sync"
)

// Schema describes one resource: its fields, who may do what with it,
// and the hooks that run around its operations.
//
// Fields are fixed at construction. Permissions and hooks are meant to be
// configured during setup, before traffic; they are guarded by a lock so
// later changes are race-free, but in-flight operations may or may not
// observe them.
type Schema struct {
	fields     Fields
	jsonSchema *JSONSchema

	mu          sync.RWMutex
	permissions map[string][]Action
	hooks       hookTable
}

// SchemaDefinitionError reports a malformed field declaration.
type SchemaDefinitionError struct {
	Field  string
	Reason string
}

func (e *SchemaDefinitionError) Error() string {
	return fmt.Sprintf("schema: field %q: %s", e.Field, e.Reason)
}

// IndexDecl is an index the storage backend should maintain.
type IndexDecl struct {
	Field  string
	Unique bool
}

// New builds a schema from field declarations.
func New(fields Fields) (*Schema, error) {
	js, err := Build(fields)
	if err != nil {
		return nil, err
	}

	s := &Schema{
		fields:      append(Fields(nil), fields...),
		jsonSchema:  js,
		permissions: make(map[string][]Action),
	}
	s.ClearHooks()
	return s, nil
}

// MustNew is like New but panics on a definition error.
// Intended for schemas declared in code.
func MustNew(fields Fields) *Schema {
	s, err := New(fields)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the field declarations in order.
func (s *Schema) Fields() Fields {
	return append(Fields(nil), s.fields...)
}

// JSONSchema returns the derived validation schema.
func (s *Schema) JSONSchema() *JSONSchema {
	return s.jsonSchema
}

// Indices lists the fields that declare an index.
func (s *Schema) Indices() []IndexDecl {
	var out []IndexDecl
	for _, def := range s.fields {
		if def.Field.Index == nil {
			continue
		}
		out = append(out, IndexDecl{Field: def.Name, Unique: def.Field.Index.Unique})
	}
	return out
}

// SecretFields returns the names of password fields.
func (s *Schema) SecretFields() []string {
	var out []string
	for _, def := range s.fields {
		if def.Field.IsSecret() {
			out = append(out, def.Name)
		}
	}
	return out
}
