package schema

import (
	"fmt"
	"reflect"
	"sort"
)

// JSONSchema is the structural validation schema derived from field
// declarations. It mirrors the subset of JSON Schema the engine needs.
type JSONSchema struct {
	Type                 string                 `json:"type"`
	Format               string                 `json:"format,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	AdditionalProperties *JSONSchema            `json:"additionalProperties,omitempty"`
	Required             []string               `json:"required,omitempty"`

	// Closed rejects properties not listed in Properties
	// (additionalProperties: false).
	Closed bool `json:"-"`
}

// ValidateOptions relaxes validation.
type ValidateOptions struct {
	// AdditionalProperties accepts fields not declared in the schema.
	AdditionalProperties bool

	// IgnoreRequired skips required-field checks (partial updates).
	IgnoreRequired bool
}

// Build translates field declarations into a JSONSchema.
func Build(fields Fields) (*JSONSchema, error) {
	root := &JSONSchema{
		Type:       "object",
		Properties: make(map[string]*JSONSchema, len(fields)),
		Closed:     true,
	}

	for _, def := range fields {
		if def.Name == "" {
			return nil, &SchemaDefinitionError{Field: def.Name, Reason: "field name is empty"}
		}
		if _, dup := root.Properties[def.Name]; dup {
			return nil, &SchemaDefinitionError{Field: def.Name, Reason: "declared twice"}
		}

		prop, err := buildField(def.Name, def.Field)
		if err != nil {
			return nil, err
		}
		root.Properties[def.Name] = prop

		if def.Field.Required {
			root.Required = append(root.Required, def.Name)
		}
	}

	return root, nil
}

func buildField(path string, f Field) (*JSONSchema, error) {
	if !f.Type.IsKnown() {
		return nil, &SchemaDefinitionError{Field: path, Reason: fmt.Sprintf("unknown type %q", f.Type)}
	}

	switch f.Type {
	case FieldTypeString:
		return &JSONSchema{Type: "string"}, nil
	case FieldTypePassword:
		return &JSONSchema{Type: "string", Format: "password"}, nil
	case FieldTypeNumber:
		return &JSONSchema{Type: "number"}, nil
	case FieldTypeBoolean:
		return &JSONSchema{Type: "boolean"}, nil
	case FieldTypeObject:
		return &JSONSchema{Type: "object"}, nil
	}

	if f.Items == nil {
		return nil, &SchemaDefinitionError{Field: path, Reason: fmt.Sprintf("%s field requires items", f.Type)}
	}

	items, err := buildField(path+".items", *f.Items)
	if err != nil {
		return nil, err
	}

	if f.Type == FieldTypeArray {
		return &JSONSchema{Type: "array", Items: items}, nil
	}
	return &JSONSchema{Type: "object", AdditionalProperties: items}, nil
}

// Validate checks data against the schema and returns human-readable
// errors of the form "<field> <message>". An empty result means valid.
func (s *Schema) Validate(data map[string]any, opts ValidateOptions) []string {
	return s.jsonSchema.Validate(data, opts)
}

// Validate checks a record against this (object) schema.
func (js *JSONSchema) Validate(data map[string]any, opts ValidateOptions) []string {
	v := &validator{opts: opts}
	v.object("", data, js, true)
	return v.errs
}

type validator struct {
	opts ValidateOptions
	errs []string
}

func (v *validator) fail(path, format string, args ...any) {
	if path == "" {
		path = "record"
	}
	v.errs = append(v.errs, path+" "+fmt.Sprintf(format, args...))
}

// object validates a record or nested object. Only the root applies the
// required/closed rules; nested objects are free-form unless they carry
// AdditionalProperties (map fields).
func (v *validator) object(path string, data map[string]any, js *JSONSchema, root bool) {
	if root {
		if !v.opts.IgnoreRequired {
			for _, name := range js.Required {
				if val, ok := data[name]; !ok || val == nil {
					v.fail(join(path, name), "is required")
				}
			}
		}

		keys := sortedKeys(data)
		for _, key := range keys {
			prop, ok := js.Properties[key]
			if !ok {
				if js.Closed && !v.opts.AdditionalProperties {
					v.fail(join(path, key), "is not allowed")
				}
				continue
			}
			v.value(join(path, key), data[key], prop)
		}
		return
	}

	if js.AdditionalProperties != nil {
		for _, key := range sortedKeys(data) {
			v.value(join(path, key), data[key], js.AdditionalProperties)
		}
	}
}

func (v *validator) value(path string, val any, js *JSONSchema) {
	// Explicit nulls clear a field; required-ness is checked separately.
	if val == nil {
		return
	}

	switch js.Type {
	case "string":
		if _, ok := val.(string); !ok {
			v.fail(path, "must be of type string")
		}
	case "number":
		if !isNumber(val) {
			v.fail(path, "must be of type number")
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			v.fail(path, "must be of type boolean")
		}
	case "array":
		elems, ok := asSlice(val)
		if !ok {
			v.fail(path, "must be of type array")
			return
		}
		for i, elem := range elems {
			v.value(fmt.Sprintf("%s[%d]", path, i), elem, js.Items)
		}
	case "object":
		obj, ok := asMap(val)
		if !ok {
			v.fail(path, "must be of type object")
			return
		}
		v.object(path, obj, js, false)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isNumber(val any) bool {
	switch val.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// asSlice accepts []any as well as typed slices like []string.
func asSlice(val any) ([]any, bool) {
	if s, ok := val.([]any); ok {
		return s, true
	}

	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asMap accepts map[string]any as well as typed string-keyed maps.
func asMap(val any) (map[string]any, bool) {
	if m, ok := val.(map[string]any); ok {
		return m, true
	}

	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
