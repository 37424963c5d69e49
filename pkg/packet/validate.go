package packet

import (
	"fmt"
)

// Validate checks rec against s and returns every violation found as
// ValidationErrors, or nil.
//
// A field may be left out when it has a default or accepts null. Keys that
// the record does not declare are violations, as are unnamed or duplicate
// cutouts.
func Validate(rec AlertRecord, s *Schema) error {
	v := &validator{}
	if rec.Fields == nil {
		v.add(s.root.Name, "record has no fields")
	} else {
		v.record(s.root, rec.Fields, s.root.Name)
	}

	seen := map[string]bool{}
	for i, c := range rec.Cutouts {
		path := indexPath("cutouts", i)
		if c.Name == "" {
			v.add(path, "cutout has no name")
			continue
		}
		if seen[c.Name] {
			v.add(path, fmt.Sprintf("duplicate cutout %q", c.Name))
		}
		seen[c.Name] = true
	}

	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) add(path, reason string) {
	v.errs = append(v.errs, ValidationError{Path: path, Reason: reason})
}

func (v *validator) record(t *RecordType, m map[string]interface{}, path string) {
	for _, f := range t.Fields {
		val, ok := m[f.Name]
		if !ok {
			if !f.HasDefault && !f.Nullable() {
				v.add(path+"."+f.Name, "required field is missing")
			}
			continue
		}
		v.check(f.Type, val, path+"."+f.Name)
	}

	for k := range m {
		if t.Field(k) == nil {
			v.add(path+"."+k, "field is not declared by record "+t.FullName())
		}
	}
}

func (v *validator) check(t Type, val interface{}, path string) {
	switch t := t.(type) {
	case *PrimitiveType:
		if !primitiveMatches(t.kind, val) {
			v.add(path, fmt.Sprintf("expected %s, got %s", t.kind, describe(val)))
		}

	case *EnumType:
		s, ok := val.(string)
		if !ok {
			v.add(path, fmt.Sprintf("expected a symbol of enum %s, got %s", t.FullName(), describe(val)))
			return
		}
		if t.index(s) < 0 {
			v.add(path, fmt.Sprintf("%q is not a symbol of enum %s", s, t.FullName()))
		}

	case *ArrayType:
		items, ok := val.([]interface{})
		if !ok {
			v.add(path, fmt.Sprintf("expected an array, got %s", describe(val)))
			return
		}
		for i, item := range items {
			v.check(t.Items, item, indexPath(path, i))
		}

	case *RecordType:
		m, ok := val.(map[string]interface{})
		if !ok {
			v.add(path, fmt.Sprintf("expected record %s, got %s", t.FullName(), describe(val)))
			return
		}
		v.record(t, m, path)

	case *UnionType:
		if val == nil {
			if !isNullable(t) {
				v.add(path, "null is not allowed")
			}
			return
		}
		branches := t.nonNull()
		if len(branches) == 1 {
			// report what is wrong inside the only candidate
			v.check(branches[0], val, path)
			return
		}
		if matchBranch(t, val) == nil {
			v.add(path, fmt.Sprintf("%s matches no branch of the union", describe(val)))
		}
	}
}

// conforms reports whether val is a valid value of t.
func conforms(t Type, val interface{}) bool {
	v := &validator{}
	v.check(t, val, "")
	return len(v.errs) == 0
}

// matchBranch returns the first branch of u that accepts val.
func matchBranch(u *UnionType, val interface{}) Type {
	for _, b := range u.Branches {
		if conforms(b, val) {
			return b
		}
	}
	return nil
}

func primitiveMatches(k Kind, val interface{}) bool {
	switch val.(type) {
	case nil:
		return k == Null
	case bool:
		return k == Boolean
	case int32:
		return k == Int
	case int64:
		return k == Long
	case float32:
		return k == Float
	case float64:
		return k == Double
	case []byte:
		return k == Bytes
	case string:
		return k == String
	}
	return false
}

func describe(val interface{}) string {
	if val == nil {
		return "null"
	}
	return fmt.Sprintf("%T", val)
}
