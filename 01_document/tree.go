package document

import (
	"fmt"
	"math"

	"json2video/types"
)

// node is a cursor into the raw document tree that remembers its path, so
// every validation error can name exactly where it happened.
type node struct {
	path string
	v    any
}

func (n node) key(k string) node {
	if n.path == "" {
		return node{path: k}
	}
	return node{path: n.path + "." + k}
}

func (n node) index(i int) node {
	return node{path: fmt.Sprintf("%s[%d]", n.path, i)}
}

func (n node) fail(format string, args ...any) error {
	path := n.path
	if path == "" {
		path = "$"
	}
	return types.ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)}
}

// object is a JSON/YAML mapping with its path
type object struct {
	node
	m map[string]any
}

func asObject(n node) (object, error) {
	switch m := n.v.(type) {
	case map[string]any:
		return object{node: n, m: m}, nil
	case map[any]any:
		conv := make(map[string]any, len(m))
		for k, v := range m {
			conv[fmt.Sprint(k)] = v
		}
		return object{node: n, m: conv}, nil
	}
	return object{}, n.fail("expected an object, got %s", typeName(n.v))
}

func (o object) has(k string) bool {
	v, ok := o.m[k]
	return ok && v != nil
}

func (o object) child(k string) node {
	c := o.key(k)
	c.v = o.m[k]
	return c
}

// array returns the elements of an optional list; a missing key is empty
func (o object) array(k string) ([]node, error) {
	if !o.has(k) {
		return nil, nil
	}
	c := o.child(k)
	list, ok := c.v.([]any)
	if !ok {
		return nil, c.fail("expected an array, got %s", typeName(c.v))
	}
	out := make([]node, len(list))
	for i, v := range list {
		out[i] = c.index(i)
		out[i].v = v
	}
	return out, nil
}

func (o object) str(k string, required bool, def string) (string, error) {
	if !o.has(k) {
		if required {
			return "", o.key(k).fail("is required")
		}
		return def, nil
	}
	c := o.child(k)
	s, ok := c.v.(string)
	if !ok {
		return "", c.fail("expected a string, got %s", typeName(c.v))
	}
	if required && s == "" {
		return "", c.fail("must not be empty")
	}
	return s, nil
}

func (o object) number(k string, def float64) (float64, error) {
	if !o.has(k) {
		return def, nil
	}
	c := o.child(k)
	f, ok := toFloat(c.v)
	if !ok {
		return 0, c.fail("expected a number, got %s", typeName(c.v))
	}
	return f, nil
}

func (o object) nonNegative(k string, def float64) (float64, error) {
	f, err := o.number(k, def)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, o.child(k).fail("must not be negative")
	}
	return f, nil
}

func (o object) boolean(k string, def bool) (bool, error) {
	if !o.has(k) {
		return def, nil
	}
	c := o.child(k)
	b, ok := c.v.(bool)
	if !ok {
		return false, c.fail("expected a boolean, got %s", typeName(c.v))
	}
	return b, nil
}

func (o object) integer(k string) (*int, error) {
	if !o.has(k) {
		return nil, nil
	}
	c := o.child(k)
	i, ok := toInt(c.v)
	if !ok {
		return nil, c.fail("expected an integer, got %s", typeName(c.v))
	}
	return &i, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n), true
		}
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any, map[any]any:
		return "object"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
