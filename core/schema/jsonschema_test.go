package schema

import (
	"reflect"
	"testing"
)

func userSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New(Fields{
		{Name: "username", Field: Of(FieldTypeString).AsRequired()},
		{Name: "age", Field: Of(FieldTypeNumber)},
		{Name: "active", Field: Of(FieldTypeBoolean)},
		{Name: "groups", Field: ArrayOf(Of(FieldTypeString))},
		{Name: "profile", Field: Of(FieldTypeObject)},
		{Name: "permissions", Field: MapOf(ArrayOf(Of(FieldTypeString)))},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestValidate(t *testing.T) {
	s := userSchema(t)

	tests := []struct {
		name string
		data map[string]any
		opts ValidateOptions
		want []string
	}{
		{
			name: "valid record",
			data: map[string]any{
				"username":    "ada",
				"age":         36,
				"active":      true,
				"groups":      []any{"users", "admins"},
				"profile":     map[string]any{"anything": []any{1, "x"}},
				"permissions": map[string]any{"posts": []any{"read"}},
			},
		},
		{
			name: "typed go values",
			data: map[string]any{
				"username":    "ada",
				"age":         float32(1.5),
				"groups":      []string{"users"},
				"permissions": map[string][]string{"*": {"read"}},
			},
		},
		{
			name: "missing required",
			data: map[string]any{"age": 1},
			want: []string{"username is required"},
		},
		{
			name: "null required",
			data: map[string]any{"username": nil},
			want: []string{"username is required"},
		},
		{
			name: "ignore required",
			data: map[string]any{"age": 1},
			opts: ValidateOptions{IgnoreRequired: true},
		},
		{
			name: "wrong element type",
			data: map[string]any{"username": "ada", "groups": []any{"users", 7}},
			want: []string{"groups[1] must be of type string"},
		},
		{
			name: "wrong map value",
			data: map[string]any{"username": "ada", "permissions": map[string]any{"posts": []any{true}}},
			want: []string{"permissions.posts[0] must be of type string"},
		},
		{
			name: "wrong scalar types",
			data: map[string]any{"username": 5, "active": "yes", "age": "old"},
			want: []string{
				"active must be of type boolean",
				"age must be of type number",
				"username must be of type string",
			},
		},
		{
			name: "array expected",
			data: map[string]any{"username": "ada", "groups": "users"},
			want: []string{"groups must be of type array"},
		},
		{
			name: "unknown field",
			data: map[string]any{"username": "ada", "extra": 1},
			want: []string{"extra is not allowed"},
		},
		{
			name: "additional properties allowed",
			data: map[string]any{"username": "ada", "extra": 1},
			opts: ValidateOptions{AdditionalProperties: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Validate(tt.data, tt.opts)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Validate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildJSONSchema(t *testing.T) {
	js := userSchema(t).JSONSchema()

	if js.Type != "object" || !js.Closed {
		t.Fatalf("root = %+v, want closed object", js)
	}
	if len(js.Required) != 1 || js.Required[0] != "username" {
		t.Errorf("Required = %v, want [username]", js.Required)
	}

	perms := js.Properties["permissions"]
	if perms.Type != "object" || perms.AdditionalProperties == nil {
		t.Fatalf("permissions = %+v, want object with additionalProperties", perms)
	}
	if perms.AdditionalProperties.Type != "array" || perms.AdditionalProperties.Items.Type != "string" {
		t.Errorf("permissions values = %+v", perms.AdditionalProperties)
	}
}
