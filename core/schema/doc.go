/*
Package schema defines resources: the shape of their records, who may act on
them, and the hooks that run around each operation.

# Fields

A schema is an ordered list of named fields. Supported field types:

  - string:   Text value
  - password: Text value, treated as a secret
  - number:   Numeric value
  - boolean:  Boolean value
  - object:   Free-form object
  - array:    List of values described by items
  - map:      Object whose values are described by items

Composite types (array, map) must describe their items, recursively:

	permissions: { type: map, items: { type: array, items: string } }

A field can declare a storage index. `index: true` is a plain index,
`index: { unique: true }` a unique one. See (*Schema).Indices.

# Validation

Records are validated structurally against a JSON-Schema-shaped document
derived from the fields. Validate returns readable messages such as
"groups[1] must be of type string" and never panics.

# Permissions

Each schema carries a table of group -> actions. Canonical actions are
read, create, update and remove; get, insert, add and delete are accepted as
aliases. The "*" group applies to everyone, including anonymous callers.

	s.Allow("*", "read").Allow("admins", "create", "update", "delete")

# Hooks

Hooks run before and after an operation, keyed by method name (create,
update, remove, read, list, get). They may rewrite the operation data or
abort it by returning an error.

# Parsing

Load resource definitions from YAML:

	def, err := schema.ParseFile("resources/posts.yaml")
	defs, err := schema.ParseDir("resources/")
	s, err := def.Schema()
*/
package schema
