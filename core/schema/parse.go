package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is a resource declared in YAML:
//
//	resource: posts
//	fields:
//	  title: { type: string, required: true }
//	  slug:  { type: string, index: { unique: true } }
//	  tags:  { type: array, items: string }
//	permissions:
//	  "*":    [read]
//	  admins: [read, create, update, delete]
//	hooks:
//	  before:
//	    create: [slugify]
type Definition struct {
	Resource    string              `yaml:"resource"`
	Fields      Fields              `yaml:"fields"`
	Permissions map[string][]string `yaml:"permissions"`

	// Hooks names registered hook functions per method. Names are resolved
	// by the runtime when the resource is loaded.
	Hooks HookRefs `yaml:"hooks"`

	// Source is the file the definition was read from, if any.
	Source string `yaml:"-"`
}

// HookRefs maps method names to hook function names.
type HookRefs struct {
	Before map[string][]string `yaml:"before"`
	After  map[string][]string `yaml:"after"`
}

// Schema builds the schema and applies the declared permissions.
func (d Definition) Schema() (*Schema, error) {
	s, err := New(d.Fields)
	if err != nil {
		return nil, err
	}

	groups := make([]string, 0, len(d.Permissions))
	for g := range d.Permissions {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		s.Allow(g, d.Permissions[g]...)
	}
	return s, nil
}

// ParseFile parses a resource definition from a YAML file.
func ParseFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read file %s: %w", path, err)
	}

	def, err := Parse(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	def.Source = path
	return def, nil
}

// Parse parses a resource definition from YAML bytes.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := Validate(def); err != nil {
		return Definition{}, fmt.Errorf("validate resource %q: %w", def.Resource, err)
	}

	return def, nil
}

// ParseDir parses all resource definitions from a directory, including
// subdirectories. Resource names must be unique across the tree.
func ParseDir(dir string) ([]Definition, error) {
	var defs []Definition
	if err := parseDir(dir, &defs); err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(defs))
	for _, def := range defs {
		if prev, dup := seen[def.Resource]; dup {
			return nil, fmt.Errorf("resource %q defined in both %s and %s", def.Resource, prev, def.Source)
		}
		seen[def.Resource] = def.Source
	}
	return defs, nil
}

func parseDir(dir string, defs *[]Definition) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := parseDir(path, defs); err != nil {
				return err
			}
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		def, err := ParseFile(path)
		if err != nil {
			return err
		}
		*defs = append(*defs, def)
	}
	return nil
}

// Validate checks a resource definition without building it.
func Validate(def Definition) error {
	var errs []string

	if def.Resource == "" {
		errs = append(errs, "resource name is required")
	} else if !isValidResourceName(def.Resource) {
		errs = append(errs, fmt.Sprintf("resource name %q is not a valid identifier", def.Resource))
	}

	if len(def.Fields) == 0 {
		errs = append(errs, "fields must have at least one entry")
	}

	for _, f := range def.Fields {
		if !isValidIdentifier(f.Name) {
			errs = append(errs, fmt.Sprintf("field name %q is not a valid identifier", f.Name))
		}
	}

	if _, err := Build(def.Fields); err != nil {
		errs = append(errs, err.Error())
	}

	for group, actions := range def.Permissions {
		for _, a := range actions {
			if _, ok := ParseAction(a); !ok {
				errs = append(errs, fmt.Sprintf("permissions %q: unknown action %q", group, a))
			}
		}
	}

	for phase, refs := range map[string]map[string][]string{"before": def.Hooks.Before, "after": def.Hooks.After} {
		for method, names := range refs {
			for _, name := range names {
				if strings.TrimSpace(name) == "" {
					errs = append(errs, fmt.Sprintf("hooks.%s.%s: empty hook name", phase, method))
				}
			}
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// isValidResourceName allows identifiers plus a leading underscore for
// internal collections such as _users.
func isValidResourceName(s string) bool {
	return isValidIdentifier(strings.TrimPrefix(s, "_"))
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
