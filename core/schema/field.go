package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FieldType represents the type tag of a schema field.
type FieldType string

const (
	// Primitive types
	FieldTypeString   FieldType = "string"
	FieldTypePassword FieldType = "password" // String, flagged as a secret
	FieldTypeNumber   FieldType = "number"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeObject   FieldType = "object"

	// Composite types (require Items)
	FieldTypeArray FieldType = "array"
	FieldTypeMap   FieldType = "map"
)

// IsComposite reports whether the type needs an Items descriptor.
func (t FieldType) IsComposite() bool {
	return t == FieldTypeArray || t == FieldTypeMap
}

// IsKnown reports whether t is one of the supported type tags.
func (t FieldType) IsKnown() bool {
	switch t {
	case FieldTypeString, FieldTypePassword, FieldTypeNumber, FieldTypeBoolean,
		FieldTypeObject, FieldTypeArray, FieldTypeMap:
		return true
	default:
		return false
	}
}

// Field describes one field of a record.
//
// In YAML a field is either a bare type tag:
//
//	title: string
//
// or a mapping:
//
//	tags: { type: array, items: string, index: true }
//	slug: { type: string, required: true, index: { unique: true } }
type Field struct {
	// Type is the field type. See FieldType constants.
	Type FieldType `yaml:"type"`

	// Items describes the elements of array and map fields.
	Items *Field `yaml:"items,omitempty"`

	// Index declares a storage index on this field.
	Index *Index `yaml:"index,omitempty"`

	// Required indicates this field must be provided on create.
	Required bool `yaml:"required,omitempty"`
}

// Index is an index declaration attached to a field.
type Index struct {
	Unique bool `yaml:"unique,omitempty"`
}

// Of returns a field of the given primitive type.
func Of(t FieldType) Field {
	return Field{Type: t}
}

// ArrayOf returns an array field whose elements are described by items.
func ArrayOf(items Field) Field {
	return Field{Type: FieldTypeArray, Items: &items}
}

// MapOf returns a map field whose values are described by items.
func MapOf(items Field) Field {
	return Field{Type: FieldTypeMap, Items: &items}
}

// WithIndex returns a copy of f carrying an index declaration.
func (f Field) WithIndex(unique bool) Field {
	f.Index = &Index{Unique: unique}
	return f
}

// AsRequired returns a copy of f marked as required.
func (f Field) AsRequired() Field {
	f.Required = true
	return f
}

// IsSecret returns whether the field holds a secret value.
func (f Field) IsSecret() bool {
	return f.Type == FieldTypePassword
}

// UnmarshalYAML accepts both the scalar shorthand and the mapping form.
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*f = Field{Type: FieldType(node.Value)}
		return nil
	}

	var raw struct {
		Type     FieldType `yaml:"type"`
		Items    *Field    `yaml:"items"`
		Index    yaml.Node `yaml:"index"`
		Required bool      `yaml:"required"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	index, err := decodeIndex(&raw.Index)
	if err != nil {
		return err
	}

	*f = Field{
		Type:     raw.Type,
		Items:    raw.Items,
		Index:    index,
		Required: raw.Required,
	}
	return nil
}

// decodeIndex reads `index: true|false` or `index: {unique: bool}`.
func decodeIndex(node *yaml.Node) (*Index, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		if !enabled {
			return nil, nil
		}
		return &Index{}, nil
	case yaml.MappingNode:
		var idx Index
		if err := node.Decode(&idx); err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		return &idx, nil
	default:
		return nil, fmt.Errorf("index: expected bool or mapping at line %d", node.Line)
	}
}

// FieldDef is a named field.
type FieldDef struct {
	Name  string
	Field Field
}

// Fields is an ordered list of field definitions.
type Fields []FieldDef

// UnmarshalYAML keeps the document order of the mapping.
func (fs *Fields) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("fields must be a mapping, got line %d", node.Line)
	}

	out := make(Fields, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var def FieldDef
		def.Name = node.Content[i].Value
		if err := node.Content[i+1].Decode(&def.Field); err != nil {
			return fmt.Errorf("field %q: %w", def.Name, err)
		}
		out = append(out, def)
	}

	*fs = out
	return nil
}

// Get returns the field with the given name.
func (fs Fields) Get(name string) (Field, bool) {
	for _, def := range fs {
		if def.Name == name {
			return def.Field, true
		}
	}
	return Field{}, false
}

// Names returns the field names in declaration order.
func (fs Fields) Names() []string {
	names := make([]string, len(fs))
	for i, def := range fs {
		names[i] = def.Name
	}
	return names
}
