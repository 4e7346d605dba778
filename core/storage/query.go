package storage

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Match reports whether rec satisfies q.
//
// Supported operators: $eq $ne $gt $gte $lt $lte $in $nin $exists
// $elemMatch on fields, $and $or at the top level. Field names may use dots
// to reach into nested objects. Equality against an array field matches when
// the array contains the value.
func Match(rec Record, q Query) (bool, error) {
	for key, cond := range q {
		var (
			ok  bool
			err error
		)
		switch key {
		case "$and":
			ok, err = matchAll(rec, cond, true)
		case "$or":
			ok, err = matchAll(rec, cond, false)
		default:
			if strings.HasPrefix(key, "$") {
				return false, fmt.Errorf("%w: unknown operator %s", ErrInvalidQuery, key)
			}
			val, present := lookup(rec, key)
			ok, err = matchField(val, present, cond)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Select filters records by q, keeping their order.
func Select(records []Record, q Query) ([]Record, error) {
	var out []Record
	for _, rec := range records {
		ok, err := Match(rec, q)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Page applies sort, skip and limit to an already filtered result.
func Page(records []Record, opts FindOptions) []Record {
	if opts.Sort != "" {
		field, desc := strings.TrimPrefix(opts.Sort, "-"), strings.HasPrefix(opts.Sort, "-")
		sort.SliceStable(records, func(i, j int) bool {
			a, _ := lookup(records[i], field)
			b, _ := lookup(records[j], field)
			if desc {
				return less(b, a)
			}
			return less(a, b)
		})
	}

	if opts.Skip > 0 {
		if opts.Skip >= len(records) {
			return nil
		}
		records = records[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < len(records) {
		records = records[:opts.Limit]
	}
	return records
}

// IDOnly reports the identifier a query pins down, if it is of the form
// {"_id": "<id>"}. Adapters use it to skip a scan.
func IDOnly(q Query) (string, bool) {
	if len(q) != 1 {
		return "", false
	}
	id, ok := q[IDField].(string)
	return id, ok
}

func matchAll(rec Record, cond any, all bool) (bool, error) {
	clauses, ok := asList(cond)
	if !ok {
		return false, fmt.Errorf("%w: $and/$or expects an array", ErrInvalidQuery)
	}
	for _, c := range clauses {
		sub, ok := asDoc(c)
		if !ok {
			return false, fmt.Errorf("%w: $and/$or clause must be an object", ErrInvalidQuery)
		}
		matched, err := Match(rec, sub)
		if err != nil {
			return false, err
		}
		if matched != all {
			return matched, nil
		}
	}
	return all, nil
}

func matchField(val any, present bool, cond any) (bool, error) {
	ops, isOps := operatorDoc(cond)
	if !isOps {
		return present && equalOrContains(val, cond), nil
	}

	for op, arg := range ops {
		ok, err := matchOp(val, present, op, arg)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOp(val any, present bool, op string, arg any) (bool, error) {
	switch op {
	case "$eq":
		return present && equalOrContains(val, arg), nil
	case "$ne":
		return !present || !equalOrContains(val, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !present {
			return false, nil
		}
		return anyElem(val, func(v any) bool { return compareOp(op, v, arg) }), nil
	case "$in":
		list, ok := asList(arg)
		if !ok {
			return false, fmt.Errorf("%w: $in expects an array", ErrInvalidQuery)
		}
		if !present {
			return false, nil
		}
		for _, candidate := range list {
			if equalOrContains(val, candidate) {
				return true, nil
			}
		}
		return false, nil
	case "$nin":
		ok, err := matchOp(val, present, "$in", arg)
		return !ok, err
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return false, fmt.Errorf("%w: $exists expects a boolean", ErrInvalidQuery)
		}
		return present == want, nil
	case "$elemMatch":
		elems, ok := asList(val)
		if !present || !ok {
			return false, nil
		}
		for _, elem := range elems {
			matched, err := matchElem(elem, arg)
			if err != nil {
				return false, err
			}
			if matched {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %s", ErrInvalidQuery, op)
	}
}

// matchElem matches one array element against an $elemMatch argument: a
// sub-query for object elements or an operator document for scalars.
func matchElem(elem, arg any) (bool, error) {
	if _, isOps := operatorDoc(arg); isOps {
		return matchField(elem, true, arg)
	}
	sub, ok := asDoc(arg)
	if !ok {
		return false, fmt.Errorf("%w: $elemMatch expects an object", ErrInvalidQuery)
	}
	doc, ok := asDoc(elem)
	if !ok {
		return false, nil
	}
	return Match(doc, sub)
}

// operatorDoc returns cond as an operator document when all of its keys
// are operators.
func operatorDoc(cond any) (map[string]any, bool) {
	m, ok := asDoc(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func lookup(rec map[string]any, path string) (any, bool) {
	cur := any(rec)
	for _, part := range strings.Split(path, ".") {
		m, ok := asDoc(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func equalOrContains(val, want any) bool {
	if equal(val, want) {
		return true
	}
	if _, wantList := asList(want); wantList {
		return false
	}
	elems, ok := asList(val)
	if !ok {
		return false
	}
	for _, e := range elems {
		if equal(e, want) {
			return true
		}
	}
	return false
}

func anyElem(val any, pred func(any) bool) bool {
	if elems, ok := asList(val); ok {
		for _, e := range elems {
			if pred(e) {
				return true
			}
		}
		return false
	}
	return pred(val)
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func compareOp(op string, a, b any) bool {
	c, ok := compare(a, b)
	if !ok {
		return false
	}
	switch op {
	case "$gt":
		return c > 0
	case "$gte":
		return c >= 0
	case "$lt":
		return c < 0
	default:
		return c <= 0
	}
}

// compare orders two numbers or two strings.
func compare(a, b any) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

// less orders values for sorting: missing values first, then numbers,
// then strings, then everything else.
func less(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c < 0
	}
	return rank(a) < rank(b)
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toFloat(v); ok {
		return 1
	}
	if _, ok := v.(string); ok {
		return 2
	}
	return 3
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asDoc(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	default:
		return nil, false
	}
}
