package storage

import (
	"fmt"
	"strings"
)

// Apply returns a copy of rec with m applied. rec must be normalized.
//
// Supported operators: $set $unset $inc $push $pull $addToSet. $push and
// $addToSet accept {"$each": [...]} to add several values. A mutation
// without operators is a $set of its fields. The identifier cannot be
// changed.
func Apply(rec Record, m Mutation) (Record, error) {
	ops, err := operators(m)
	if err != nil {
		return nil, err
	}

	out := Clone(rec)
	if out == nil {
		out = Record{}
	}

	// Fixed order keeps results independent of map iteration.
	for _, op := range []string{"$set", "$unset", "$inc", "$push", "$addToSet", "$pull"} {
		fields, ok := ops[op]
		if !ok {
			continue
		}
		for path, arg := range fields {
			if path == IDField {
				if op == "$set" && equal(out[IDField], arg) {
					continue
				}
				return nil, fmt.Errorf("%w: %s cannot be modified", ErrInvalidMutation, IDField)
			}
			if err := applyOp(out, op, path, normalizeValue(arg)); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func operators(m Mutation) (map[string]map[string]any, error) {
	hasOps, hasFields := false, false
	for k := range m {
		if strings.HasPrefix(k, "$") {
			hasOps = true
		} else {
			hasFields = true
		}
	}
	if hasOps && hasFields {
		return nil, fmt.Errorf("%w: cannot mix operators and fields", ErrInvalidMutation)
	}
	if !hasOps {
		return map[string]map[string]any{"$set": m}, nil
	}

	out := make(map[string]map[string]any, len(m))
	for op, arg := range m {
		switch op {
		case "$set", "$unset", "$inc", "$push", "$pull", "$addToSet":
		default:
			return nil, fmt.Errorf("%w: unknown operator %s", ErrInvalidMutation, op)
		}
		fields, ok := asDoc(arg)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects an object", ErrInvalidMutation, op)
		}
		out[op] = fields
	}
	return out, nil
}

func applyOp(rec Record, op, path string, arg any) error {
	parent, key, err := parentOf(rec, path, op != "$unset")
	if err != nil {
		return err
	}
	if parent == nil {
		return nil
	}

	switch op {
	case "$set":
		parent[key] = arg
	case "$unset":
		delete(parent, key)
	case "$inc":
		delta, ok := toFloat(arg)
		if !ok {
			return fmt.Errorf("%w: $inc %s expects a number", ErrInvalidMutation, path)
		}
		cur, present := parent[key]
		if !present || cur == nil {
			parent[key] = delta
			return nil
		}
		n, ok := toFloat(cur)
		if !ok {
			return fmt.Errorf("%w: $inc %s on non-numeric value", ErrInvalidMutation, path)
		}
		parent[key] = n + delta
	case "$push", "$addToSet":
		list, err := listAt(parent, key, path, op)
		if err != nil {
			return err
		}
		for _, v := range eachValues(arg) {
			if op == "$addToSet" && containsEqual(list, v) {
				continue
			}
			list = append(list, v)
		}
		parent[key] = list
	case "$pull":
		list, err := listAt(parent, key, path, op)
		if err != nil {
			return err
		}
		kept := list[:0:0]
		for _, elem := range list {
			drop, err := pullMatches(elem, arg)
			if err != nil {
				return err
			}
			if !drop {
				kept = append(kept, elem)
			}
		}
		parent[key] = kept
	}
	return nil
}

// parentOf walks a dotted path and returns the object holding its last
// segment. With create, missing intermediate objects are created; without
// it a missing path yields a nil parent.
func parentOf(rec Record, path string, create bool) (map[string]any, string, error) {
	parts := strings.Split(path, ".")
	cur := map[string]any(rec)
	for _, part := range parts[:len(parts)-1] {
		next, present := cur[part]
		if !present || next == nil {
			if !create {
				return nil, "", nil
			}
			child := map[string]any{}
			cur[part] = child
			cur = child
			continue
		}
		child, ok := asDoc(next)
		if !ok {
			return nil, "", fmt.Errorf("%w: %s traverses a non-object", ErrInvalidMutation, path)
		}
		cur = child
	}
	return cur, parts[len(parts)-1], nil
}

func listAt(parent map[string]any, key, path, op string) ([]any, error) {
	cur, present := parent[key]
	if !present || cur == nil {
		return []any{}, nil
	}
	list, ok := asList(cur)
	if !ok {
		return nil, fmt.Errorf("%w: %s %s on non-array value", ErrInvalidMutation, op, path)
	}
	return list, nil
}

func eachValues(arg any) []any {
	if doc, ok := asDoc(arg); ok && len(doc) == 1 {
		if each, ok := asList(doc["$each"]); ok {
			return each
		}
	}
	return []any{arg}
}

func containsEqual(list []any, v any) bool {
	for _, e := range list {
		if equal(e, v) {
			return true
		}
	}
	return false
}

// pullMatches reports whether elem should be removed by a $pull argument:
// an operator document or sub-query removes matching elements, any other
// value removes equal elements.
func pullMatches(elem, arg any) (bool, error) {
	if _, isOps := operatorDoc(arg); isOps {
		return matchField(elem, true, arg)
	}
	if sub, ok := asDoc(arg); ok {
		doc, ok := asDoc(elem)
		if !ok {
			return false, nil
		}
		return Match(doc, sub)
	}
	return equal(elem, arg), nil
}
