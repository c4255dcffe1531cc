package store

import (
	"fmt"
	"sort"
)

// Schema maps a field name to the set of primitive type tags it accepts.
// A nil Schema means "accept any primitive-typed field by name, drop
// non-primitives". A declared Schema must only name primitive tags:
// TypeAbsent is allowed inside a field's accepted set (to mark a nullable
// field) but a schema entry cannot be empty.
type Schema map[string][]FieldType

// FieldNames returns the schema's field names in lexicographic order, the
// field ordering the codec walks positionally.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Accepts reports whether t is one of the field's declared tags.
func (s Schema) Accepts(field string, t FieldType) bool {
	tags, ok := s[field]
	if !ok {
		return false
	}
	for _, tag := range tags {
		if tag == t {
			return true
		}
	}
	return false
}

// ValidateDeclaration rejects a schema whose field entries are not
// primitive-type tags (a programmer error raised at NewTable time, never
// surfaced over the wire).
func (s Schema) ValidateDeclaration() error {
	for field, tags := range s {
		if len(tags) == 0 {
			return fmt.Errorf("store: schema field %q declares no accepted types", field)
		}
		for _, tag := range tags {
			switch tag {
			case TypeAbsent, TypeString, TypeInteger, TypeBoolean:
			default:
				return fmt.Errorf("store: schema field %q declares non-primitive tag %v", field, tag)
			}
		}
	}
	return nil
}

// SchemaCopy projects input into the shape the table's schema (or, absent
// a schema, the "primitives only" default) demands. It never mutates
// input.
func SchemaCopy(schema Schema, input map[string]any) (map[string]any, error) {
	if schema == nil {
		out := make(map[string]any, len(input))
		for field, v := range input {
			if _, ok := ValueType(v); ok {
				out[field] = v
			}
		}
		return out, nil
	}

	out := make(map[string]any, len(schema))
	for _, field := range schema.FieldNames() {
		v := input[field]
		t, ok := ValueType(v)
		if !ok {
			return nil, fmt.Errorf("store: field %q has a non-primitive value", field)
		}
		if !schema.Accepts(field, t) {
			return nil, fmt.Errorf("store: field %q has type %v, not in the schema's accepted set", field, t)
		}
		out[field] = v
	}
	return out, nil
}

// ShallowEqual reports whether two schema-projected data maps hold the
// same fields and values. Set uses this to decide whether a write is a
// true no-op.
func ShallowEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		other, ok := b[k]
		if !ok || other != v {
			return false
		}
	}
	return true
}
