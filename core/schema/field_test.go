package schema

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestFieldUnmarshalYAML(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		wantType  FieldType
		wantItems FieldType
		wantIndex *Index
		required  bool
	}{
		{
			name:     "scalar shorthand",
			yaml:     `string`,
			wantType: FieldTypeString,
		},
		{
			name:      "array with scalar items",
			yaml:      `{ type: array, items: string }`,
			wantType:  FieldTypeArray,
			wantItems: FieldTypeString,
		},
		{
			name:      "index true",
			yaml:      `{ type: string, index: true }`,
			wantType:  FieldTypeString,
			wantIndex: &Index{},
		},
		{
			name:     "index false",
			yaml:     `{ type: string, index: false }`,
			wantType: FieldTypeString,
		},
		{
			name:      "unique index",
			yaml:      `{ type: string, required: true, index: { unique: true } }`,
			wantType:  FieldTypeString,
			wantIndex: &Index{Unique: true},
			required:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Field
			if err := yaml.Unmarshal([]byte(tt.yaml), &f); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if f.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", f.Type, tt.wantType)
			}
			if tt.wantItems != "" {
				if f.Items == nil || f.Items.Type != tt.wantItems {
					t.Errorf("Items = %+v, want type %q", f.Items, tt.wantItems)
				}
			}
			switch {
			case tt.wantIndex == nil && f.Index != nil:
				t.Errorf("Index = %+v, want nil", f.Index)
			case tt.wantIndex != nil && (f.Index == nil || *f.Index != *tt.wantIndex):
				t.Errorf("Index = %+v, want %+v", f.Index, tt.wantIndex)
			}
			if f.Required != tt.required {
				t.Errorf("Required = %v, want %v", f.Required, tt.required)
			}
		})
	}
}

func TestFieldsKeepDocumentOrder(t *testing.T) {
	src := `
zeta: string
alpha: number
mid: { type: array, items: boolean }
`
	var fs Fields
	if err := yaml.Unmarshal([]byte(src), &fs); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	got := fs.Names()
	want := []string{"zeta", "alpha", "mid"}
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if f, ok := fs.Get("mid"); !ok || f.Items == nil || f.Items.Type != FieldTypeBoolean {
		t.Errorf("Get(mid) = %+v, %v", f, ok)
	}
	if _, ok := fs.Get("missing"); ok {
		t.Error("Get(missing) should report false")
	}
}

func TestNewRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name   string
		fields Fields
	}{
		{"unknown type", Fields{{Name: "x", Field: Of("uuid")}}},
		{"array without items", Fields{{Name: "tags", Field: Field{Type: FieldTypeArray}}}},
		{"map without items", Fields{{Name: "perms", Field: Field{Type: FieldTypeMap}}}},
		{"nested array without items", Fields{{Name: "grid", Field: ArrayOf(Field{Type: FieldTypeArray})}}},
		{"duplicate name", Fields{{Name: "a", Field: Of(FieldTypeString)}, {Name: "a", Field: Of(FieldTypeNumber)}}},
		{"empty name", Fields{{Name: "", Field: Of(FieldTypeString)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fields)
			var defErr *SchemaDefinitionError
			if !errors.As(err, &defErr) {
				t.Fatalf("New() error = %v, want *SchemaDefinitionError", err)
			}
		})
	}
}

func TestIndices(t *testing.T) {
	s := MustNew(Fields{
		{Name: "username", Field: Of(FieldTypeString).WithIndex(true)},
		{Name: "email", Field: Of(FieldTypeString).WithIndex(false)},
		{Name: "bio", Field: Of(FieldTypeString)},
	})

	got := s.Indices()
	if len(got) != 2 {
		t.Fatalf("Indices() = %v, want 2 entries", got)
	}
	if got[0] != (IndexDecl{Field: "username", Unique: true}) {
		t.Errorf("Indices()[0] = %+v", got[0])
	}
	if got[1] != (IndexDecl{Field: "email", Unique: false}) {
		t.Errorf("Indices()[1] = %+v", got[1])
	}
}

func TestSecretFields(t *testing.T) {
	s := MustNew(Fields{
		{Name: "username", Field: Of(FieldTypeString)},
		{Name: "password", Field: Of(FieldTypePassword)},
	})

	got := s.SecretFields()
	if len(got) != 1 || got[0] != "password" {
		t.Errorf("SecretFields() = %v, want [password]", got)
	}
	if s.JSONSchema().Properties["password"].Format != "password" {
		t.Error("password field should carry format password")
	}
}
